// Package cftest provides an in-memory Cloudflare v4 DNS API for tests.
package cftest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Record is a stored DNS record.
type Record struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

// Fake is a minimal in-memory Cloudflare API. It serves zone lookup and
// dns_records list/create/delete for a fixed set of zones.
type Fake struct {
	Mu      sync.Mutex
	Zones   map[string]string            // zone name -> zone id
	Records map[string]map[string]Record // zone id -> record id -> record
	Calls   []string                     // "METHOD /path" in order
	// FailNext, when > 0, makes that many following requests answer 503.
	FailNext int

	nextID int
}

// New returns a fake holding the given zones (name -> id).
func New(zones map[string]string) *Fake {
	f := &Fake{Zones: zones, Records: map[string]map[string]Record{}}
	for _, id := range zones {
		f.Records[id] = map[string]Record{}
	}
	return f
}

// Seed stores a record and returns its id.
func (f *Fake) Seed(zoneID, name, address string) string {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("rec-%d", f.nextID)
	f.Records[zoneID][id] = Record{ID: id, Type: "A", Name: name, Content: address, TTL: 300}
	return id
}

// Addresses returns the content of every record named name in zoneID.
func (f *Fake) Addresses(zoneID, name string) []string {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	var out []string
	for _, r := range f.Records[zoneID] {
		if r.Name == name {
			out = append(out, r.Content)
		}
	}
	return out
}

// Count returns the number of calls whose "METHOD /path" starts with prefix.
func (f *Fake) Count(prefix string) int {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Mu.Lock()
	f.Calls = append(f.Calls, r.Method+" "+r.URL.Path)
	if f.FailNext > 0 {
		f.FailNext--
		f.Mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]interface{}{"success": false, "errors": []map[string]interface{}{{"code": 10000, "message": "unavailable"}}})
		return
	}
	f.Mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "zones" && r.Method == http.MethodGet:
		f.handleZones(w, r)
	case len(parts) == 3 && parts[0] == "zones" && parts[2] == "dns_records" && r.Method == http.MethodGet:
		f.handleList(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "zones" && parts[2] == "dns_records" && r.Method == http.MethodPost:
		f.handleCreate(w, r, parts[1])
	case len(parts) == 4 && parts[0] == "zones" && parts[2] == "dns_records" && r.Method == http.MethodDelete:
		f.handleDelete(w, parts[1], parts[3])
	default:
		http.NotFound(w, r)
	}
}

func (f *Fake) handleZones(w http.ResponseWriter, r *http.Request) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	name := r.URL.Query().Get("name")
	result := []map[string]string{}
	if id, ok := f.Zones[name]; ok {
		result = append(result, map[string]string{"id": id, "name": name})
	}
	ok(w, result, nil)
}

func (f *Fake) handleList(w http.ResponseWriter, r *http.Request, zoneID string) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	name := r.URL.Query().Get("name")
	typ := r.URL.Query().Get("type")
	result := []Record{}
	for _, rec := range f.Records[zoneID] {
		if (name == "" || rec.Name == name) && (typ == "" || rec.Type == typ) {
			result = append(result, rec)
		}
	}
	ok(w, result, map[string]int{"page": 1, "total_pages": 1})
}

func (f *Fake) handleCreate(w http.ResponseWriter, r *http.Request, zoneID string) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.Mu.Lock()
	defer f.Mu.Unlock()
	if _, known := f.Records[zoneID]; !known {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{"success": false, "errors": []map[string]interface{}{{"code": 7003, "message": "no such zone"}}})
		return
	}
	f.nextID++
	rec.ID = fmt.Sprintf("rec-%d", f.nextID)
	f.Records[zoneID][rec.ID] = rec
	ok(w, rec, nil)
}

func (f *Fake) handleDelete(w http.ResponseWriter, zoneID, recordID string) {
	f.Mu.Lock()
	defer f.Mu.Unlock()
	if _, exists := f.Records[zoneID][recordID]; !exists {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{"success": false, "errors": []map[string]interface{}{{"code": 81044, "message": "Record does not exist."}}})
		return
	}
	delete(f.Records[zoneID], recordID)
	ok(w, map[string]string{"id": recordID}, nil)
}

func ok(w http.ResponseWriter, result interface{}, info interface{}) {
	body := map[string]interface{}{"success": true, "errors": []interface{}{}, "result": result}
	if info != nil {
		body["result_info"] = info
	}
	writeJSON(w, body)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

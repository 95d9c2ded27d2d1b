// ABOUTME: On-demand fetchers for employees, invoices, and absence requests
// ABOUTME: Short-lived TTL entries in the cache table instead of dedicated sync runs
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/flipmoo/begripp-sub005/db"
	"github.com/flipmoo/begripp-sub005/gripp"
	"github.com/flipmoo/begripp-sub005/models"
)

const (
	cacheKeyEmployees = "employees"
	cacheKeyInvoices  = "invoices"

	// DefaultTTL bounds how long on-demand lookups are served from cache.
	DefaultTTL = 15 * time.Minute
)

// OnDemand serves entity lookups that are not part of the project sync.
// Results live in the key-value cache table with a TTL; on fetch failure a
// stale entry is served rather than nothing.
type OnDemand struct {
	db     *sql.DB
	client API
	ttl    time.Duration
}

func NewOnDemand(database *sql.DB, client API, ttl time.Duration) *OnDemand {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &OnDemand{db: database, client: client, ttl: ttl}
}

// Employees returns active employees. The second return value reports
// whether stale cached data was served after a fetch failure.
func (o *OnDemand) Employees(ctx context.Context) ([]models.Employee, bool, error) {
	var cached []models.Employee
	fresh, stale, err := o.lookup(ctx, cacheKeyEmployees, "employee.get",
		[]gripp.Filter{{Field: "employee.active", Operator: "equals", Value: true}}, &cached)
	if err != nil {
		return nil, false, err
	}
	if fresh == nil {
		return cached, stale, nil
	}

	employees := make([]models.Employee, 0, len(fresh))
	for _, row := range fresh {
		employee, err := gripp.NormalizeEmployee(row)
		if err != nil {
			log.Printf("Warning: skipping unparseable employee row: %v", err)
			continue
		}
		employees = append(employees, *employee)
	}
	o.store(cacheKeyEmployees, employees)
	return employees, false, nil
}

// Invoices returns all invoices.
func (o *OnDemand) Invoices(ctx context.Context) ([]models.Invoice, bool, error) {
	var cached []models.Invoice
	fresh, stale, err := o.lookup(ctx, cacheKeyInvoices, "invoice.get", nil, &cached)
	if err != nil {
		return nil, false, err
	}
	if fresh == nil {
		return cached, stale, nil
	}

	invoices := make([]models.Invoice, 0, len(fresh))
	for _, row := range fresh {
		invoice, err := gripp.NormalizeInvoice(row)
		if err != nil {
			log.Printf("Warning: skipping unparseable invoice row: %v", err)
			continue
		}
		invoices = append(invoices, *invoice)
	}
	o.store(cacheKeyInvoices, invoices)
	return invoices, false, nil
}

// AbsenceRequests returns absence requests overlapping the date range
// (inclusive, "2006-01-02" formatted).
func (o *OnDemand) AbsenceRequests(ctx context.Context, from, to string) ([]models.AbsenceRequest, bool, error) {
	key := fmt.Sprintf("absencerequests:%s:%s", from, to)
	filters := []gripp.Filter{
		{Field: "absencerequestline.date", Operator: "greaterequals", Value: from},
		{Field: "absencerequestline.date", Operator: "lessequals", Value: to},
	}

	var cached []models.AbsenceRequest
	fresh, stale, err := o.lookup(ctx, key, "absencerequest.get", filters, &cached)
	if err != nil {
		return nil, false, err
	}
	if fresh == nil {
		return cached, stale, nil
	}

	requests := make([]models.AbsenceRequest, 0, len(fresh))
	for _, row := range fresh {
		request, err := gripp.NormalizeAbsenceRequest(row)
		if err != nil {
			log.Printf("Warning: skipping unparseable absence request row: %v", err)
			continue
		}
		requests = append(requests, *request)
	}
	o.store(key, requests)
	return requests, false, nil
}

// lookup implements the shared cache-then-fetch flow. It returns fresh rows
// to normalize, or nil rows when the decoded cache (written into dest)
// should be used; stale reports a fallback after a fetch failure.
func (o *OnDemand) lookup(ctx context.Context, key, method string, filters []gripp.Filter, dest interface{}) (rows []json.RawMessage, stale bool, err error) {
	var haveCached bool
	entry, cacheErr := db.GetCacheItem(o.db, key)
	if cacheErr != nil {
		log.Printf("Warning: cache read for %s failed: %v", key, cacheErr)
	}
	if entry != nil {
		if err := json.Unmarshal(entry.Value, dest); err != nil {
			log.Printf("Warning: discarding corrupt cache entry %s: %v", key, err)
		} else {
			haveCached = true
			if time.Since(entry.UpdatedAt) < o.ttl {
				return nil, false, nil
			}
		}
	}

	rows, fetchErr := o.client.GetAll(ctx, method, filters)
	if fetchErr != nil {
		if haveCached {
			// Serve the expired entry rather than nothing.
			log.Printf("Warning: fetch for %s failed, serving stale cache: %v", key, fetchErr)
			return nil, true, nil
		}
		return nil, false, fetchErr
	}

	return rows, false, nil
}

func (o *OnDemand) store(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("Warning: failed to encode cache entry %s: %v", key, err)
		return
	}
	if err := db.SetCacheItem(o.db, key, data); err != nil {
		log.Printf("Warning: failed to write cache entry %s: %v", key, err)
	}
}

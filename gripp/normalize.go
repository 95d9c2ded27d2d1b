// ABOUTME: Normalization of raw Gripp rows into typed records
// ABOUTME: Tolerates JSON-string-encoded fields and falls back per field to safe defaults
package gripp

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/flipmoo/begripp-sub005/models"
)

// rawProject holds the polymorphic fields of a project row undecoded.
// Cached rows may carry nested objects as JSON-encoded strings, so every
// inconsistent field is parsed independently with its own fallback.
type rawProject struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Number           int64           `json:"number"`
	Color            string          `json:"color"`
	Archived         bool            `json:"archived"`
	Company          json.RawMessage `json:"company"`
	Phase            json.RawMessage `json:"phase"`
	Tags             json.RawMessage `json:"tags"`
	Deadline         json.RawMessage `json:"deadline"`
	StartDate        json.RawMessage `json:"startdate"`
	EndDate          json.RawMessage `json:"enddate"`
	TotalExclVAT     json.RawMessage `json:"totalexclvat"`
	TotalInclVAT     json.RawMessage `json:"totalinclvat"`
	ProjectLines     json.RawMessage `json:"projectlines"`
	EmployeesStarred json.RawMessage `json:"employees_starred"`
	ViewOnlineURL    string          `json:"viewonlineurl"`
}

// NormalizeProject converts a raw Gripp project row into a typed Project.
// A failure in any single field logs a warning and substitutes that field's
// safe default; only a row that is not an object at all is an error.
func NormalizeProject(raw json.RawMessage) (*models.Project, error) {
	var rp rawProject
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, fmt.Errorf("project row is not an object: %w", err)
	}
	if rp.ID == 0 {
		return nil, fmt.Errorf("project row has no id")
	}

	p := &models.Project{
		ID:               rp.ID,
		Name:             rp.Name,
		Number:           rp.Number,
		Color:            rp.Color,
		Archived:         rp.Archived,
		Company:          parseCompany(rp.ID, rp.Company),
		Phase:            parsePhase(rp.ID, rp.Phase),
		Tags:             parseTags(rp.ID, rp.Tags),
		Deadline:         parseDate(rp.ID, "deadline", rp.Deadline),
		StartDate:        parseDate(rp.ID, "startdate", rp.StartDate),
		EndDate:          parseDate(rp.ID, "enddate", rp.EndDate),
		TotalExclVAT:     parseDecimal(rp.ID, "totalexclvat", rp.TotalExclVAT),
		TotalInclVAT:     parseDecimal(rp.ID, "totalinclvat", rp.TotalInclVAT),
		Lines:            parseLines(rp.ID, rp.ProjectLines),
		StarredEmployees: parseStarred(rp.ID, rp.EmployeesStarred),
		ViewOnlineURL:    rp.ViewOnlineURL,
	}

	return p, nil
}

// unwrapField handles the string-or-object ambiguity. If raw is a JSON
// string whose contents start with '{' or '[', the inner JSON is returned
// for decoding. A plain string (no JSON prefix) is a bare value, not
// malformed JSON, and is returned as such.
func unwrapField(raw json.RawMessage) (data json.RawMessage, bare string, isBare bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, "", false
	}

	if trimmed[0] != '"' {
		return json.RawMessage(trimmed), "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, "", false
	}

	inner := strings.TrimSpace(s)
	if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
		return json.RawMessage(inner), "", false
	}
	return nil, s, true
}

func parseTags(projectID int64, raw json.RawMessage) []models.Tag {
	data, bare, isBare := unwrapField(raw)
	if isBare {
		if strings.TrimSpace(bare) != "" {
			log.Printf("Warning: project %d: tags value %q is not JSON, using empty list", projectID, bare)
		}
		return []models.Tag{}
	}
	if data == nil {
		return []models.Tag{}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		// Some rows carry a single tag object instead of an array.
		var tag models.Tag
		if err := json.Unmarshal(data, &tag); err == nil && (tag.ID != 0 || tag.Name != "") {
			return []models.Tag{tag}
		}
		log.Printf("Warning: project %d: failed to parse tags, using empty list: %v", projectID, err)
		return []models.Tag{}
	}

	tags := make([]models.Tag, 0, len(elems))
	for _, elem := range elems {
		var tag models.Tag
		if err := json.Unmarshal(elem, &tag); err == nil && (tag.ID != 0 || tag.Name != "") {
			tags = append(tags, tag)
			continue
		}
		var name string
		if err := json.Unmarshal(elem, &name); err == nil && name != "" {
			tags = append(tags, models.Tag{Name: name})
			continue
		}
		log.Printf("Warning: project %d: skipping unparseable tag entry %s", projectID, string(elem))
	}
	return tags
}

func parseCompany(projectID int64, raw json.RawMessage) *models.Company {
	data, bare, isBare := unwrapField(raw)
	if isBare {
		log.Printf("Warning: project %d: company value %q is not JSON, dropping", projectID, bare)
		return nil
	}
	if data == nil {
		return nil
	}

	var company models.Company
	if err := json.Unmarshal(data, &company); err != nil {
		log.Printf("Warning: project %d: failed to parse company, dropping: %v", projectID, err)
		return nil
	}
	return &company
}

func parsePhase(projectID int64, raw json.RawMessage) *models.Phase {
	data, bare, isBare := unwrapField(raw)
	if isBare {
		// A bare phase name like "Uitvoering" is a value, not broken JSON.
		return &models.Phase{Name: bare}
	}
	if data == nil {
		return nil
	}

	var phase models.Phase
	if err := json.Unmarshal(data, &phase); err != nil {
		log.Printf("Warning: project %d: failed to parse phase, dropping: %v", projectID, err)
		return nil
	}
	return &phase
}

func parseDate(projectID int64, field string, raw json.RawMessage) *models.DateValue {
	data, bare, isBare := unwrapField(raw)
	if isBare {
		return &models.DateValue{Date: bare}
	}
	if data == nil {
		return nil
	}

	var date models.DateValue
	if err := json.Unmarshal(data, &date); err != nil {
		log.Printf("Warning: project %d: failed to parse %s, dropping: %v", projectID, field, err)
		return nil
	}
	if date.Date == "" {
		return nil
	}
	return &date
}

// parseDecimal handles Gripp's string-encoded decimals ("12500.00") as well
// as plain numbers. Anything unparseable becomes 0.
func parseDecimal(projectID int64, field string, raw json.RawMessage) float64 {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0
		}
		if num, err := strconv.ParseFloat(s, 64); err == nil {
			return num
		}
	}

	log.Printf("Warning: record %d: unparseable %s value %s, using 0", projectID, field, trimmed)
	return 0
}

func parseStarred(projectID int64, raw json.RawMessage) []int64 {
	data, bare, isBare := unwrapField(raw)
	if isBare {
		log.Printf("Warning: project %d: starred employees value %q is not JSON, using empty list", projectID, bare)
		return nil
	}
	if data == nil {
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		log.Printf("Warning: project %d: failed to parse starred employees, using empty list: %v", projectID, err)
		return nil
	}

	ids := make([]int64, 0, len(elems))
	for _, elem := range elems {
		var id int64
		if err := json.Unmarshal(elem, &id); err == nil {
			ids = append(ids, id)
			continue
		}
		var obj struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(elem, &obj); err == nil && obj.ID != 0 {
			ids = append(ids, obj.ID)
			continue
		}
		var s string
		if err := json.Unmarshal(elem, &s); err == nil {
			if id, err := strconv.ParseInt(s, 10, 64); err == nil {
				ids = append(ids, id)
				continue
			}
		}
		log.Printf("Warning: project %d: skipping unparseable starred employee %s", projectID, string(elem))
	}
	return ids
}

type rawLine struct {
	ID            int64           `json:"id"`
	Amount        json.RawMessage `json:"amount"`
	AmountWritten json.RawMessage `json:"amountwritten"`
	SellingPrice  json.RawMessage `json:"sellingprice"`
	Description   string          `json:"description"`
	Product       *models.Product `json:"product"`
}

func parseLines(projectID int64, raw json.RawMessage) []models.ProjectLine {
	data, bare, isBare := unwrapField(raw)
	if isBare {
		log.Printf("Warning: project %d: projectlines value %q is not JSON, using empty list", projectID, bare)
		return nil
	}
	if data == nil {
		return nil
	}

	var rawLines []rawLine
	if err := json.Unmarshal(data, &rawLines); err != nil {
		log.Printf("Warning: project %d: failed to parse projectlines, using empty list: %v", projectID, err)
		return nil
	}

	lines := make([]models.ProjectLine, 0, len(rawLines))
	for _, rl := range rawLines {
		lines = append(lines, models.ProjectLine{
			ID:            rl.ID,
			Amount:        parseDecimal(projectID, "amount", rl.Amount),
			AmountWritten: parseDecimal(projectID, "amountwritten", rl.AmountWritten),
			SellingPrice:  parseDecimal(projectID, "sellingprice", rl.SellingPrice),
			Description:   rl.Description,
			Product:       rl.Product,
		})
	}
	return lines
}

// NormalizeEmployee converts a raw employee row.
func NormalizeEmployee(raw json.RawMessage) (*models.Employee, error) {
	var employee models.Employee
	if err := json.Unmarshal(raw, &employee); err != nil {
		return nil, fmt.Errorf("employee row is not an object: %w", err)
	}
	if employee.ID == 0 {
		return nil, fmt.Errorf("employee row has no id")
	}
	return &employee, nil
}

type rawInvoice struct {
	ID           int64           `json:"id"`
	Number       int64           `json:"number"`
	Subject      string          `json:"subject"`
	Company      json.RawMessage `json:"company"`
	Date         json.RawMessage `json:"date"`
	TotalExclVAT json.RawMessage `json:"totalexclvat"`
	TotalInclVAT json.RawMessage `json:"totalinclvat"`
	TotalOpen    json.RawMessage `json:"totalopeninclvat"`
}

// NormalizeInvoice converts a raw invoice row, tolerating string-encoded
// totals the same way projects do.
func NormalizeInvoice(raw json.RawMessage) (*models.Invoice, error) {
	var ri rawInvoice
	if err := json.Unmarshal(raw, &ri); err != nil {
		return nil, fmt.Errorf("invoice row is not an object: %w", err)
	}
	if ri.ID == 0 {
		return nil, fmt.Errorf("invoice row has no id")
	}

	return &models.Invoice{
		ID:           ri.ID,
		Number:       ri.Number,
		Subject:      ri.Subject,
		Company:      parseCompany(ri.ID, ri.Company),
		Date:         parseDate(ri.ID, "date", ri.Date),
		TotalExclVAT: parseDecimal(ri.ID, "totalexclvat", ri.TotalExclVAT),
		TotalInclVAT: parseDecimal(ri.ID, "totalinclvat", ri.TotalInclVAT),
		TotalOpen:    parseDecimal(ri.ID, "totalopeninclvat", ri.TotalOpen),
	}, nil
}

type rawAbsenceLine struct {
	ID     int64           `json:"id"`
	Date   json.RawMessage `json:"date"`
	Amount json.RawMessage `json:"amount"`
}

type rawAbsenceRequest struct {
	ID          int64                 `json:"id"`
	Employee    *models.Employee      `json:"employee"`
	Description string                `json:"description"`
	Status      *models.AbsenceStatus `json:"status"`
	Lines       []rawAbsenceLine      `json:"absencerequestlines"`
}

// NormalizeAbsenceRequest converts a raw absence request row.
func NormalizeAbsenceRequest(raw json.RawMessage) (*models.AbsenceRequest, error) {
	var ra rawAbsenceRequest
	if err := json.Unmarshal(raw, &ra); err != nil {
		return nil, fmt.Errorf("absence request row is not an object: %w", err)
	}
	if ra.ID == 0 {
		return nil, fmt.Errorf("absence request row has no id")
	}

	request := &models.AbsenceRequest{
		ID:          ra.ID,
		Employee:    ra.Employee,
		Description: ra.Description,
		Status:      ra.Status,
	}
	for _, rl := range ra.Lines {
		request.Lines = append(request.Lines, models.AbsenceRequestLine{
			ID:     rl.ID,
			Date:   parseDate(ra.ID, "date", rl.Date),
			Amount: parseDecimal(ra.ID, "amount", rl.Amount),
		})
	}
	return request, nil
}

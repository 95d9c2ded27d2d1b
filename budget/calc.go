// ABOUTME: Pure budget and progress calculations over project lines
// ABOUTME: Derives progress percentage, hourly rates, and overspend from budgeted vs written hours
package budget

import (
	"github.com/flipmoo/begripp-sub005/models"
)

// TotalBudgetedHours sums the budgeted hours across lines.
func TotalBudgetedHours(lines []models.ProjectLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.Amount
	}
	return total
}

// TotalWrittenHours sums the written hours across lines.
func TotalWrittenHours(lines []models.ProjectLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.AmountWritten
	}
	return total
}

// Progress returns written hours as a percentage of budgeted hours.
// Returns 0 when nothing is budgeted. Not clamped; values over 100
// indicate overspend and are stored as-is.
func Progress(lines []models.ProjectLine) float64 {
	budgeted := TotalBudgetedHours(lines)
	if budgeted == 0 {
		return 0
	}
	return TotalWrittenHours(lines) / budgeted * 100
}

// LineProgress returns the progress percentage for a single line.
func LineProgress(line models.ProjectLine) float64 {
	if line.Amount == 0 {
		return 0
	}
	return line.AmountWritten / line.Amount * 100
}

// ProgressClamped limits progress to the 0-100 range for display.
func ProgressClamped(lines []models.ProjectLine) float64 {
	p := Progress(lines)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// StartHourlyRate is the rate implied by the original budget:
// total budget divided by budgeted hours.
func StartHourlyRate(totalBudget float64, lines []models.ProjectLine) float64 {
	budgeted := TotalBudgetedHours(lines)
	if budgeted == 0 {
		return 0
	}
	return totalBudget / budgeted
}

// RealizedHourlyRate is the effective rate given hours actually written,
// capped at the start rate: writing more hours than budgeted can only
// lower the realized rate, never raise it.
func RealizedHourlyRate(totalBudget float64, lines []models.ProjectLine) float64 {
	written := TotalWrittenHours(lines)
	if written == 0 {
		return 0
	}
	realized := totalBudget / written
	if start := StartHourlyRate(totalBudget, lines); realized > start {
		return start
	}
	return realized
}

// Overspend values the hours written beyond budget at the start rate.
// Returns 0 when within budget.
func Overspend(totalBudget float64, lines []models.ProjectLine) float64 {
	budgeted := TotalBudgetedHours(lines)
	written := TotalWrittenHours(lines)
	if written <= budgeted {
		return 0
	}
	return (written - budgeted) * StartHourlyRate(totalBudget, lines)
}

// Calculate bundles all derived metrics for a project. The project's
// ex-VAT total is used as the budget.
func Calculate(p *models.Project) models.ProjectBudget {
	return models.ProjectBudget{
		Progress:           Progress(p.Lines),
		StartHourlyRate:    StartHourlyRate(p.TotalExclVAT, p.Lines),
		RealizedHourlyRate: RealizedHourlyRate(p.TotalExclVAT, p.Lines),
		Overspend:          Overspend(p.TotalExclVAT, p.Lines),
		BudgetedHours:      TotalBudgetedHours(p.Lines),
		WrittenHours:       TotalWrittenHours(p.Lines),
	}
}

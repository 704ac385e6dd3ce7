package model

import "time"

// DailyIssuance counts licenses issued on one calendar day (UTC).
type DailyIssuance struct {
	Date     time.Time `json:"date"`
	Issued   int       `json:"issued"`
	Revenue  int64     `json:"revenue"`
	Verifies int       `json:"verifies"`
}

// LicenseStatistics aggregates the license store for the admin dashboard.
type LicenseStatistics struct {
	TotalLicenses   int64            `json:"total_licenses"`
	ActiveLicenses  int64            `json:"active_licenses"`
	RevokedLicenses int64            `json:"revoked_licenses"`
	LicensesByPlan  map[string]int   `json:"licenses_by_plan"`
	RevenueByPlan   map[string]int64 `json:"revenue_by_plan"`
	TotalRevenue    int64            `json:"total_revenue"`
	DailyIssuance   []DailyIssuance  `json:"daily_issuance"`
	TotalVerifies   int64            `json:"total_verifies"`
	FailedVerifies  int64            `json:"failed_verifies"`
}

// GetSuccessRate returns the share of verifications that came back valid.
func (ls *LicenseStatistics) GetSuccessRate() float64 {
	if ls.TotalVerifies == 0 {
		return 0
	}
	return float64(ls.TotalVerifies-ls.FailedVerifies) / float64(ls.TotalVerifies)
}

// GetUsageByPlan returns the number of licenses sold for plan.
func (ls *LicenseStatistics) GetUsageByPlan(plan string) int {
	if count, ok := ls.LicensesByPlan[plan]; ok {
		return count
	}
	return 0
}

// GetDailyIssuanceByDate returns the bucket for date, or nil.
func (ls *LicenseStatistics) GetDailyIssuanceByDate(date time.Time) *DailyIssuance {
	for i := range ls.DailyIssuance {
		d := ls.DailyIssuance[i].Date
		if d.Year() == date.Year() && d.Month() == date.Month() && d.Day() == date.Day() {
			return &ls.DailyIssuance[i]
		}
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messageflow-backend/internal/model"
	"messageflow-backend/internal/store"
)

const dateLayout = "2006-01-02"

// StatisticsService aggregates the license store and usage records.
type StatisticsService struct {
	store store.Store
	audit *AuditLog
}

func NewStatisticsService(s store.Store, audit *AuditLog) *StatisticsService {
	return &StatisticsService{store: s, audit: audit}
}

// Compute returns totals over every license and daily buckets for
// [from, to], both truncated to UTC days.
func (s *StatisticsService) Compute(ctx context.Context, from, to time.Time) (*model.LicenseStatistics, error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", to.Format(dateLayout), from.Format(dateLayout))
	}
	end := to.Add(24*time.Hour - time.Nanosecond)

	licenses, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}

	stats := &model.LicenseStatistics{
		LicensesByPlan: make(map[string]int),
		RevenueByPlan:  make(map[string]int64),
	}

	days := make(map[string]*model.DailyIssuance)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		stats.DailyIssuance = append(stats.DailyIssuance, model.DailyIssuance{Date: d})
	}
	for i := range stats.DailyIssuance {
		days[stats.DailyIssuance[i].Date.Format(dateLayout)] = &stats.DailyIssuance[i]
	}

	for _, l := range licenses {
		stats.TotalLicenses++
		if l.Active {
			stats.ActiveLicenses++
		} else {
			stats.RevokedLicenses++
		}
		stats.LicensesByPlan[l.Plan]++
		stats.RevenueByPlan[l.Plan] += l.Amount
		stats.TotalRevenue += l.Amount

		if day, ok := days[l.PurchaseDate.UTC().Format(dateLayout)]; ok {
			day.Issued++
			day.Revenue += l.Amount
		}
	}

	stats.TotalVerifies, stats.FailedVerifies, err = s.audit.CountVerifies(ctx, from, end)
	if err != nil {
		return nil, err
	}
	times, err := s.audit.VerifyTimes(ctx, from, end)
	if err != nil {
		return nil, err
	}
	for _, t := range times {
		if day, ok := days[t.UTC().Format(dateLayout)]; ok {
			day.Verifies++
		}
	}

	return stats, nil
}

// MaxStatisticsSpan bounds the range one statistics request may cover.
const MaxStatisticsSpan = 366 * 24 * time.Hour

// ParseDateRange reads YYYY-MM-DD bounds. Empty values default to the last 30
// days ending today.
func ParseDateRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	to := now
	from := now.AddDate(0, 0, -30)
	var err error
	if start != "" {
		if from, err = time.Parse(dateLayout, start); err != nil {
			return time.Time{}, time.Time{}, errors.New("start_date: want YYYY-MM-DD")
		}
	}
	if end != "" {
		if to, err = time.Parse(dateLayout, end); err != nil {
			return time.Time{}, time.Time{}, errors.New("end_date: want YYYY-MM-DD")
		}
	}
	if to.Sub(from) > MaxStatisticsSpan {
		return time.Time{}, time.Time{}, errors.New("date range longer than 366 days")
	}
	return from, to, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

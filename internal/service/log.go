package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"messageflow-backend/internal/model"
)

const (
	ActorWebhook = "webhook"
	ActorAdmin   = "admin"
	ActorCLI     = "cli"
	// ActorPublic marks actions taken by anonymous purchasers.
	ActorPublic = "public"

	ActionIssue    = "license.issue"
	ActionRevoke   = "license.revoke"
	ActionRestore  = "license.restore"
	ActionDownload = "license.download"
)

// AuditLog writes operation logs, usage records and login attempts. A nil
// *AuditLog discards everything.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	if db == nil {
		return nil
	}
	return &AuditLog{db: db}
}

func (a *AuditLog) LogOperation(ctx context.Context, actor, action, target string, details interface{}) error {
	if a == nil {
		return nil
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	entry := &model.OperationLog{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Details:   string(detailsJSON),
		CreatedAt: time.Now().UTC(),
	}
	return a.db.WithContext(ctx).Create(entry).Error
}

// GetOperationLogs returns one page of operation logs, newest first.
func (a *AuditLog) GetOperationLogs(ctx context.Context, page, pageSize int) ([]model.OperationLog, int64, error) {
	if a == nil {
		return nil, 0, nil
	}
	var logs []model.OperationLog
	var total int64

	db := a.db.WithContext(ctx)
	if err := db.Model(&model.OperationLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := db.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// GetTargetLogs returns the operation logs recorded for one license.
func (a *AuditLog) GetTargetLogs(ctx context.Context, target string) ([]model.OperationLog, error) {
	if a == nil {
		return nil, nil
	}
	var logs []model.OperationLog
	err := a.db.WithContext(ctx).Where("target = ?", target).Order("created_at ASC, id ASC").Find(&logs).Error
	return logs, err
}

// RequestMeta identifies the client behind a verify or download.
type RequestMeta struct {
	IP        string
	UserAgent string
}

func (a *AuditLog) RecordUsage(ctx context.Context, key, action, result string, meta RequestMeta) error {
	if a == nil {
		return nil
	}
	usage := model.LicenseUsage{
		LicenseKey: key,
		Action:     action,
		Result:     result,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
		Timestamp:  time.Now().UTC(),
	}
	return a.db.WithContext(ctx).Create(&usage).Error
}

// GetUsage returns the latest usage records for key.
func (a *AuditLog) GetUsage(ctx context.Context, key string, limit int) ([]model.LicenseUsage, error) {
	if a == nil {
		return nil, nil
	}
	var usages []model.LicenseUsage
	err := a.db.WithContext(ctx).
		Where("license_key = ?", key).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&usages).Error
	return usages, err
}

// CountVerifies returns total and failed verify attempts between from and to.
func (a *AuditLog) CountVerifies(ctx context.Context, from, to time.Time) (total, failed int64, err error) {
	if a == nil {
		return 0, 0, nil
	}
	db := a.db.WithContext(ctx).Model(&model.LicenseUsage{}).
		Where("action = ? AND timestamp BETWEEN ? AND ?", "verify", from, to)
	if err := db.Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count verifies: %w", err)
	}
	if err := a.db.WithContext(ctx).Model(&model.LicenseUsage{}).
		Where("action = ? AND result <> ? AND timestamp BETWEEN ? AND ?", "verify", VerifyValid, from, to).
		Count(&failed).Error; err != nil {
		return 0, 0, fmt.Errorf("count failed verifies: %w", err)
	}
	return total, failed, nil
}

func (a *AuditLog) RecordLogin(ctx context.Context, username, status string, meta RequestMeta) error {
	if a == nil {
		return nil
	}
	entry := &model.LoginLog{
		Username:  username,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	return a.db.WithContext(ctx).Create(entry).Error
}

// GetLoginLogs returns one page of admin login attempts, newest first.
func (a *AuditLog) GetLoginLogs(ctx context.Context, page, pageSize int) ([]model.LoginLog, int64, error) {
	if a == nil {
		return nil, 0, nil
	}
	var logs []model.LoginLog
	var total int64

	db := a.db.WithContext(ctx).Model(&model.LoginLog{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := db.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// VerifyTimes returns the timestamps of verify attempts between from and to.
func (a *AuditLog) VerifyTimes(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if a == nil {
		return nil, nil
	}
	var usages []model.LicenseUsage
	err := a.db.WithContext(ctx).
		Select("timestamp").
		Where("action = ? AND timestamp BETWEEN ? AND ?", "verify", from, to).
		Find(&usages).Error
	if err != nil {
		return nil, fmt.Errorf("list verify times: %w", err)
	}
	times := make([]time.Time, len(usages))
	for i, u := range usages {
		times[i] = u.Timestamp
	}
	return times, nil
}

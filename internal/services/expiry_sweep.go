package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/mail"
	"github.com/charlesng35/licensewatch/pkg/metrics"
)

const (
	expiryEmailSubject  = "License Expiration Notice"
	expiryEmailTemplate = "license_expiring"

	digestEmailSubject  = "Expiring Licenses Summary"
	digestEmailTemplate = "license_digest"
	digestAttachment    = "expiring_licenses.xlsx"
)

// SweepResult summarises one run of the expiring-license sweep.
type SweepResult struct {
	Licenses             int  `json:"licenses"`
	Owners               int  `json:"owners"`
	EmailsSent           int  `json:"emails_sent"`
	EmailsFailed         int  `json:"emails_failed"`
	NotificationsCreated int  `json:"notifications_created"`
	DigestSent           bool `json:"digest_sent"`
}

// DigestSender delivers a templated email with attachments.
type DigestSender interface {
	SendWithAttachments(ctx context.Context, to []string, subject, templateName string, vars map[string]any, attachments ...mail.Attachment) bool
}

// DigestBuilder renders the expiring licenses as a spreadsheet attachment.
type DigestBuilder interface {
	ExpiringLicensesWorkbook(items []ExpiringLicense) ([]byte, error)
}

type digestConfig struct {
	recipient string
	sender    DigestSender
	builder   DigestBuilder
}

// WithExpiryDigest additionally mails every swept license to recipient as a spreadsheet.
func WithExpiryDigest(recipient string, sender DigestSender, builder DigestBuilder) NotificationOption {
	return func(s *NotificationService) {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" || sender == nil || builder == nil {
			return
		}
		s.digest = &digestConfig{recipient: recipient, sender: sender, builder: builder}
	}
}

type ownerGroup struct {
	email    string
	userID   string
	licenses []models.License
}

// SendExpiringLicenseNotifications emails each device owner once about their licenses
// expiring within ExpiryHorizon and records one notification per license.
// Email failures are counted, not returned; a failed notification write aborts the sweep.
// Each run creates new notification rows even if an earlier run already covered the license.
func (s *NotificationService) SendExpiringLicenseNotifications(ctx context.Context) (SweepResult, error) {
	ctx = ensureContext(ctx)

	var result SweepResult
	now := s.now().UTC()
	horizon := now.Add(ExpiryHorizon)

	var licenses []models.License
	err := s.db.WithContext(ctx).
		Preload("Device.AddedBy").
		Where("expiration_date > ? AND expiration_date <= ?", now, horizon).
		Order("expiration_date ASC").
		Find(&licenses).Error
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		return result, fmt.Errorf("notification service: load expiring licenses: %w", err)
	}
	result.Licenses = len(licenses)

	groups := groupByOwner(licenses)
	result.Owners = len(groups)

	for _, group := range groups {
		items := make([]map[string]any, 0, len(group.licenses))
		for _, license := range group.licenses {
			items = append(items, map[string]any{
				"id":                license.ID,
				"device":            license.Device.ServiceTag,
				"license_type":      license.LicenseType,
				"expiry_date":       license.ExpirationDate,
				"days_until_expiry": license.DaysUntil(now),
			})
		}

		sent := s.sendExpiryEmail(ctx, group.email, items)
		if sent {
			result.EmailsSent++
			metrics.SweepEmails.WithLabelValues("sent").Inc()
		} else {
			result.EmailsFailed++
			metrics.SweepEmails.WithLabelValues("failed").Inc()
			s.log.Warn("expiration email not delivered",
				zap.String("recipient", group.email),
				zap.Int("licenses", len(group.licenses)),
			)
		}

		for _, license := range group.licenses {
			days := license.DaysUntil(now)
			userID := group.userID
			notification := &models.Notification{
				LicenseID:        license.ID,
				UserID:           &userID,
				Message:          formatDays(days),
				Urgency:          models.UrgencyForDays(days),
				Sent:             sent,
				NotificationDate: now,
			}
			if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
				metrics.SweepRuns.WithLabelValues("error").Inc()
				return result, fmt.Errorf("notification service: create notification for license %s: %w", license.ID, err)
			}
			result.NotificationsCreated++
			metrics.NotificationsCreated.WithLabelValues(string(notification.Urgency)).Inc()
			s.broadcast(notification.UserID, EventNotificationCreated, &NotificationEventPayload{Notification: notification})
		}
	}

	if s.digest != nil && len(licenses) > 0 {
		result.DigestSent = s.sendDigest(ctx, licenses, now)
	}

	metrics.SweepRuns.WithLabelValues("success").Inc()
	s.log.Info("expiring license sweep complete",
		zap.Int("licenses", result.Licenses),
		zap.Int("owners", result.Owners),
		zap.Int("emails_sent", result.EmailsSent),
		zap.Int("emails_failed", result.EmailsFailed),
		zap.Int("notifications", result.NotificationsCreated),
	)
	return result, nil
}

func (s *NotificationService) sendExpiryEmail(ctx context.Context, to string, items []map[string]any) bool {
	if s.sender == nil {
		return false
	}
	return s.sender.Send(ctx, []string{to}, expiryEmailSubject, expiryEmailTemplate, map[string]any{
		"licenses":      items,
		"dashboard_url": s.cfg.DashboardURL(),
		"company_name":  s.cfg.ProjectName,
	})
}

func (s *NotificationService) sendDigest(ctx context.Context, licenses []models.License, now time.Time) bool {
	items := make([]ExpiringLicense, 0, len(licenses))
	for _, license := range licenses {
		items = append(items, ExpiringLicense{License: license, DaysUntilExpiry: license.DaysUntil(now)})
	}

	workbook, err := s.digest.builder.ExpiringLicensesWorkbook(items)
	if err != nil {
		s.log.Warn("failed to build expiring license digest", zap.Error(err))
		return false
	}

	return s.digest.sender.SendWithAttachments(ctx, []string{s.digest.recipient}, digestEmailSubject, digestEmailTemplate,
		map[string]any{
			"count":         len(items),
			"dashboard_url": s.cfg.DashboardURL(),
			"company_name":  s.cfg.ProjectName,
		},
		mail.Attachment{
			Filename:    digestAttachment,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        workbook,
		},
	)
}

// groupByOwner buckets licenses by owner email, preserving first-seen order.
// Licenses on devices without an owner, or whose owner has no email, are dropped.
func groupByOwner(licenses []models.License) []*ownerGroup {
	var (
		groups []*ownerGroup
		index  = map[string]*ownerGroup{}
	)
	for _, license := range licenses {
		if license.Device == nil || license.Device.AddedBy == nil {
			continue
		}
		owner := license.Device.AddedBy
		email := strings.TrimSpace(owner.Email)
		if email == "" {
			continue
		}
		group, ok := index[email]
		if !ok {
			group = &ownerGroup{email: email, userID: owner.ID}
			index[email] = group
			groups = append(groups, group)
		}
		group.licenses = append(group.licenses, license)
	}
	return groups
}

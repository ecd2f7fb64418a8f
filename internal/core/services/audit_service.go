package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/platform/logging"
	"github.com/crestfx/fincore/internal/utils/idgen"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// alertThreshold is the risk score at or above which a security alert fires.
const alertThreshold = 80

// largeAmountThreshold is the base-currency amount above which the risk score
// is raised.
var largeAmountThreshold = decimal.NewFromInt(10000)

// baseSeverity maps each action to its default classification.
var baseSeverity = map[domain.AuditAction]domain.AuditSeverity{
	domain.ActionTransactionCreated:  domain.SeverityLow,
	domain.ActionTransactionApproved: domain.SeverityMedium,
	domain.ActionTransactionFailed:   domain.SeverityMedium,
	domain.ActionTransactionReversed: domain.SeverityHigh,
	domain.ActionEntryReversed:       domain.SeverityHigh,
	domain.ActionAccountCreated:      domain.SeverityLow,
	domain.ActionAccountDeactivated:  domain.SeverityMedium,
	domain.ActionBalanceAdjusted:     domain.SeverityHigh,
	domain.ActionAccessDenied:        domain.SeverityHigh,
	domain.ActionTenantCreated:       domain.SeverityMedium,
	domain.ActionTenantMoved:         domain.SeverityHigh,
	domain.ActionTenantDeactivated:   domain.SeverityHigh,
	domain.ActionLoginFailed:         domain.SeverityMedium,
	domain.ActionSuspiciousActivity:  domain.SeverityCritical,
}

// baseRiskScore seeds the score before situational bumps.
var baseRiskScore = map[domain.AuditAction]int{
	domain.ActionTransactionCreated:  30,
	domain.ActionTransactionApproved: 15,
	domain.ActionTransactionFailed:   20,
	domain.ActionTransactionReversed: 35,
	domain.ActionEntryReversed:       35,
	domain.ActionAccountCreated:      5,
	domain.ActionAccountDeactivated:  15,
	domain.ActionBalanceAdjusted:     40,
	domain.ActionAccessDenied:        45,
	domain.ActionTenantCreated:       10,
	domain.ActionTenantMoved:         30,
	domain.ActionTenantDeactivated:   30,
	domain.ActionLoginFailed:         70,
	domain.ActionSuspiciousActivity:  90,
}

// retentionBySeverity is the minimum record lifetime per classification.
var retentionBySeverity = map[domain.AuditSeverity]time.Duration{
	domain.SeverityLow:      5 * 365 * 24 * time.Hour,
	domain.SeverityMedium:   7 * 365 * 24 * time.Hour,
	domain.SeverityHigh:     8 * 365 * 24 * time.Hour,
	domain.SeverityCritical: 10 * 365 * 24 * time.Hour,
}

// longRetentionTags force the maximum retention regardless of severity.
var longRetentionTags = map[string]bool{
	"AML":        true,
	"KYC":        true,
	"SUSPICIOUS": true,
}

// AuditService is the audit logger (C7): it scores, classifies and persists
// one immutable record per mutation, raises security alerts, and runs a
// bounded retry queue for out-of-band records such as access denials.
type AuditService struct {
	auditRepo  portsrepo.AuditRepository
	tenantRepo portsrepo.TenantRepository
	clock      portsrepo.Clock
	alerts     portsrepo.AlertSink

	queue chan portssvc.AuditEvent
	wg    sync.WaitGroup
	once  sync.Once
}

var _ portssvc.AuditSvcFacade = (*AuditService)(nil)

// NewAuditService creates the audit logger and starts its queue worker.
func NewAuditService(auditRepo portsrepo.AuditRepository, tenantRepo portsrepo.TenantRepository, clock portsrepo.Clock, alerts portsrepo.AlertSink, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &AuditService{
		auditRepo:  auditRepo,
		tenantRepo: tenantRepo,
		clock:      clock,
		alerts:     alerts,
		queue:      make(chan portssvc.AuditEvent, queueSize),
	}
	s.wg.Add(1)
	go s.drainQueue()
	return s
}

// Log scores, classifies and persists one audit event. It is called inside
// the mutating unit of work, so the mutation commits only if the record was
// written.
func (s *AuditService) Log(ctx context.Context, event portssvc.AuditEvent) (*domain.AuditRecord, error) {
	record := s.buildRecord(event)
	if err := s.auditRepo.SaveAuditRecord(ctx, record); err != nil {
		return nil, err
	}

	if s.alerts != nil && (record.RiskScore >= alertThreshold || record.Severity == domain.SeverityCritical) {
		s.alerts.SecurityAlert(ctx, record)
	}
	return &record, nil
}

// LogAsync enqueues an out-of-band record. When the queue is full the event
// is dropped and the drop is logged; denial decisions never block on the
// audit store.
func (s *AuditService) LogAsync(event portssvc.AuditEvent) {
	select {
	case s.queue <- event:
	default:
		logging.FromContext(context.Background()).Error("audit queue full, dropping event",
			"action", string(event.Action), "tenantID", event.TenantID, "actorID", event.Actor.ID)
	}
}

// Query pages the audit trail for a tenant the principal can reach.
func (s *AuditService) Query(ctx context.Context, params dto.AuditQueryParams, principal domain.Principal) (*dto.AuditQueryResult, error) {
	if params.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", apperrors.ErrValidation)
	}
	ok, err := s.canReach(ctx, principal, params.TenantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s", apperrors.ErrAccessDenied, params.TenantID)
	}

	records, nextToken, err := s.auditRepo.QueryAuditRecords(ctx, params)
	if err != nil {
		return nil, err
	}
	return &dto.AuditQueryResult{Records: records, NextToken: nextToken}, nil
}

// Close stops the queue worker after draining pending events.
func (s *AuditService) Close() {
	s.once.Do(func() { close(s.queue) })
	s.wg.Wait()
}

func (s *AuditService) drainQueue() {
	defer s.wg.Done()
	for event := range s.queue {
		s.persistAsync(event)
	}
}

// persistAsync writes one queued event with bounded retries.
func (s *AuditService) persistAsync(event portssvc.AuditEvent) {
	record := s.buildRecord(event)
	logger := logging.FromContext(context.Background())

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = s.auditRepo.SaveAuditRecord(ctx, record)
		cancel()
		if err == nil {
			if s.alerts != nil && (record.RiskScore >= alertThreshold || record.Severity == domain.SeverityCritical) {
				s.alerts.SecurityAlert(context.Background(), record)
			}
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	logger.Error("failed to persist queued audit record",
		"auditID", record.AuditID, "action", string(record.Action), "error", err)
}

// buildRecord applies scoring, severity classification and retention to one event.
func (s *AuditService) buildRecord(event portssvc.AuditEvent) domain.AuditRecord {
	now := s.clock.Now()

	score := baseRiskScore[event.Action]
	if event.AmountInBase.GreaterThan(largeAmountThreshold) {
		score += 20
	}
	if event.Actor.UnusualIP {
		score += 15
	}
	if event.ResponseCode >= 400 {
		score += 25
	}
	// Off-hours in the clock's zone; the wall clock serves UTC as the
	// business-hours convention.
	if hour := now.Hour(); hour < 6 || hour > 22 {
		score += 10
	}
	if score > 100 {
		score = 100
	}

	severity := baseSeverity[event.Action]
	if severity == "" {
		severity = domain.SeverityLow
	}
	severity = severity.AtLeast(event.SeverityFloor)
	if score >= alertThreshold {
		severity = severity.AtLeast(domain.SeverityHigh)
	}

	retention := retentionBySeverity[severity]
	for _, tag := range event.Tags {
		if longRetentionTags[tag] {
			retention = retentionBySeverity[domain.SeverityCritical]
			break
		}
	}

	return domain.AuditRecord{
		AuditID:       uuid.NewString(),
		AuditNumber:   idgen.AuditNumber(now),
		TenantID:      event.TenantID,
		ActorID:       event.Actor.ID,
		Action:        event.Action,
		ResourceType:  event.ResourceType,
		ResourceID:    event.ResourceID,
		TransactionID: event.TransactionID,
		Description:   event.Description,
		BeforeState:   event.BeforeState,
		AfterState:    event.AfterState,
		Metadata:      event.Metadata,
		IPAddress:     event.Actor.IPAddress,
		UserAgent:     event.Actor.UserAgent,
		Severity:      severity,
		RiskScore:     score,
		Tags:          event.Tags,
		RetainedUntil: now.Add(retention),
		CreatedAt:     now,
	}
}

// canReach walks the tenant chain upward from target looking for the
// principal's home tenant. The walk is depth-bounded so a corrupted parent
// chain cannot loop.
func (s *AuditService) canReach(ctx context.Context, principal domain.Principal, targetTenantID string) (bool, error) {
	if principal.IsGlobal() {
		return true, nil
	}
	current := targetTenantID
	for depth := 0; depth < 64; depth++ {
		if current == principal.HomeTenantID {
			return true, nil
		}
		t, err := s.tenantRepo.FindTenantByID(ctx, current)
		if err != nil {
			return false, err
		}
		if t.IsRoot() {
			return false, nil
		}
		current = *t.ParentTenantID
	}
	return false, fmt.Errorf("%w: tenant chain above %s", apperrors.ErrHierarchyCycle, targetTenantID)
}

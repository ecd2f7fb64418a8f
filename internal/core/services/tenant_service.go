package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/crestfx/fincore/internal/apperrors"
	"github.com/crestfx/fincore/internal/core/domain"
	portsrepo "github.com/crestfx/fincore/internal/core/ports/repositories"
	portssvc "github.com/crestfx/fincore/internal/core/ports/services"
	"github.com/crestfx/fincore/internal/dto"
	"github.com/crestfx/fincore/internal/platform/logging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxHierarchyDepth bounds ancestor walks so a corrupted parent chain cannot loop.
const maxHierarchyDepth = 64

// TenantService is the hierarchy resolver (C1). It keeps an adjacency cache
// rebuilt from the store on demand and invalidated on every structural write,
// so ancestor chains resolve in O(depth) without per-hop store reads.
type TenantService struct {
	tenantRepo portsrepo.TenantRepository
	audit      portssvc.AuditSvcFacade
	txManager  portsrepo.TxManager
	clock      portsrepo.Clock

	defaultThreshold decimal.Decimal

	mu       sync.RWMutex
	byID     map[string]domain.Tenant
	children map[string][]string
	loaded   bool
}

var _ portssvc.TenantSvcFacade = (*TenantService)(nil)

// NewTenantService creates the hierarchy resolver.
func NewTenantService(tenantRepo portsrepo.TenantRepository, audit portssvc.AuditSvcFacade, txManager portsrepo.TxManager, clock portsrepo.Clock, defaultThreshold decimal.Decimal) *TenantService {
	return &TenantService{
		tenantRepo:       tenantRepo,
		audit:            audit,
		txManager:        txManager,
		clock:            clock,
		defaultThreshold: defaultThreshold,
	}
}

// CreateTenant creates a node, as a root when no parent is given. The
// creator needs admin within an accessible tenant chain containing the parent.
func (s *TenantService) CreateTenant(ctx context.Context, req dto.CreateTenantRequest, creator domain.Principal) (*domain.Tenant, error) {
	logger := logging.FromContext(ctx)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !creator.HasRole(domain.RoleAdmin) && !creator.IsGlobal() {
		return nil, fmt.Errorf("%w: creating tenants requires the admin role", apperrors.ErrForbidden)
	}

	level := 1
	var parentID *string
	if req.ParentTenantID != "" {
		ok, err := s.IsAccessible(ctx, creator, req.ParentTenantID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: tenant %s", apperrors.ErrAccessDenied, req.ParentTenantID)
		}
		parent, err := s.tenantRepo.FindTenantByID(ctx, req.ParentTenantID)
		if err != nil {
			return nil, err
		}
		if !parent.IsActive {
			return nil, fmt.Errorf("%w: parent tenant %s is inactive", apperrors.ErrValidation, req.ParentTenantID)
		}
		level = parent.Level + 1
		id := parent.TenantID
		parentID = &id
	} else if !creator.IsGlobal() {
		return nil, fmt.Errorf("%w: creating root tenants requires global capability", apperrors.ErrForbidden)
	}

	threshold := req.ApprovalThreshold
	if threshold.IsZero() {
		threshold = s.defaultThreshold
	}

	now := s.clock.Now()
	tenant := domain.Tenant{
		TenantID:          uuid.NewString(),
		Name:              req.Name,
		ParentTenantID:    parentID,
		Level:             level,
		IsActive:          true,
		BaseCurrencyCode:  req.BaseCurrencyCode,
		ApprovalThreshold: threshold,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creator.ID,
			LastUpdatedAt: now,
			LastUpdatedBy: creator.ID,
		},
	}

	err := s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tenantRepo.SaveTenant(ctx, tenant); err != nil {
			return err
		}
		_, err := s.audit.Log(ctx, portssvc.AuditEvent{
			TenantID:     tenant.TenantID,
			Actor:        creator,
			Action:       domain.ActionTenantCreated,
			ResourceType: "tenant",
			ResourceID:   tenant.TenantID,
			Description:  "tenant " + tenant.Name + " created",
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	logger.Info("tenant created", "tenantID", tenant.TenantID, "level", tenant.Level)
	return &tenant, nil
}

// GetTenantByID retrieves one tenant node.
func (s *TenantService) GetTenantByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return s.tenantRepo.FindTenantByID(ctx, tenantID)
}

// AncestorsOf returns the chain from the tenant up to its root, tenant first.
func (s *TenantService) AncestorsOf(ctx context.Context, tenantID string) ([]domain.Tenant, error) {
	byID, _, err := s.graph(ctx)
	if err != nil {
		return nil, err
	}

	chain := []domain.Tenant{}
	current := tenantID
	for depth := 0; depth < maxHierarchyDepth; depth++ {
		t, ok := byID[current]
		if !ok {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, current)
		}
		chain = append(chain, t)
		if t.IsRoot() {
			return chain, nil
		}
		current = *t.ParentTenantID
	}
	return nil, fmt.Errorf("%w: chain above %s", apperrors.ErrHierarchyCycle, tenantID)
}

// DescendantsOf returns every tenant strictly below the given one.
func (s *TenantService) DescendantsOf(ctx context.Context, tenantID string) (map[string]domain.Tenant, error) {
	byID, children, err := s.graph(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := byID[tenantID]; !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTenantNotFound, tenantID)
	}

	result := map[string]domain.Tenant{}
	queue := append([]string{}, children[tenantID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := result[id]; seen {
			return nil, fmt.Errorf("%w: below %s", apperrors.ErrHierarchyCycle, tenantID)
		}
		result[id] = byID[id]
		queue = append(queue, children[id]...)
	}
	return result, nil
}

// IsAccessible reports whether the principal may operate on the target
// tenant: home equals target, home is an ancestor of target, or the principal
// is global. Siblings and cousins are always denied.
func (s *TenantService) IsAccessible(ctx context.Context, principal domain.Principal, targetTenantID string) (bool, error) {
	if principal.IsGlobal() {
		return true, nil
	}
	if principal.HomeTenantID == "" {
		return false, nil
	}
	chain, err := s.AncestorsOf(ctx, targetTenantID)
	if err != nil {
		return false, err
	}
	for _, t := range chain {
		if t.TenantID == principal.HomeTenantID {
			return true, nil
		}
	}
	return false, nil
}

// MoveTenant rewires a subtree under a new parent. Moving a node under itself
// or under one of its own descendants is refused.
func (s *TenantService) MoveTenant(ctx context.Context, tenantID, newParentID string, actor domain.Principal) error {
	logger := logging.FromContext(ctx)
	if !actor.HasRole(domain.RoleAdmin) && !actor.IsGlobal() {
		return fmt.Errorf("%w: moving tenants requires the admin role", apperrors.ErrForbidden)
	}
	if tenantID == newParentID {
		return fmt.Errorf("%w: tenant %s cannot be its own parent", apperrors.ErrHierarchyCycle, tenantID)
	}
	for _, target := range []string{tenantID, newParentID} {
		ok, err := s.IsAccessible(ctx, actor, target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: tenant %s", apperrors.ErrAccessDenied, target)
		}
	}

	tenant, err := s.tenantRepo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	newParent, err := s.tenantRepo.FindTenantByID(ctx, newParentID)
	if err != nil {
		return err
	}
	if !newParent.IsActive {
		return fmt.Errorf("%w: parent tenant %s is inactive", apperrors.ErrValidation, newParentID)
	}

	descendants, err := s.DescendantsOf(ctx, tenantID)
	if err != nil {
		return err
	}
	if _, inSubtree := descendants[newParentID]; inSubtree {
		return fmt.Errorf("%w: %s is below %s", apperrors.ErrHierarchyCycle, newParentID, tenantID)
	}

	newLevel := newParent.Level + 1
	shift := newLevel - tenant.Level
	oldParent := ""
	if tenant.ParentTenantID != nil {
		oldParent = *tenant.ParentTenantID
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		parentID := newParent.TenantID
		if err := s.tenantRepo.UpdateTenantParent(ctx, tenantID, &parentID, newLevel, actor.ID); err != nil {
			return err
		}
		// Descendants keep their parents; only levels shift with the subtree.
		for id, d := range descendants {
			if err := s.tenantRepo.UpdateTenantParent(ctx, id, d.ParentTenantID, d.Level+shift, actor.ID); err != nil {
				return err
			}
		}
		_, err := s.audit.Log(ctx, portssvc.AuditEvent{
			TenantID:     tenantID,
			Actor:        actor,
			Action:       domain.ActionTenantMoved,
			ResourceType: "tenant",
			ResourceID:   tenantID,
			Description:  "tenant moved to parent " + newParentID,
			BeforeState:  fmt.Sprintf(`{"parentTenantID":%q,"level":%d}`, oldParent, tenant.Level),
			AfterState:   fmt.Sprintf(`{"parentTenantID":%q,"level":%d}`, newParentID, newLevel),
		})
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate()
	logger.Info("tenant moved", "tenantID", tenantID, "newParentID", newParentID, "levelShift", shift)
	return nil
}

// DeactivateTenant flags a tenant inactive. Refused while any of its accounts
// holds a nonzero balance.
func (s *TenantService) DeactivateTenant(ctx context.Context, tenantID string, actor domain.Principal) error {
	if !actor.HasRole(domain.RoleAdmin) && !actor.IsGlobal() {
		return fmt.Errorf("%w: deactivating tenants requires the admin role", apperrors.ErrForbidden)
	}
	ok, err := s.IsAccessible(ctx, actor, tenantID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: tenant %s", apperrors.ErrAccessDenied, tenantID)
	}

	hasBalance, err := s.tenantRepo.HasAccountsWithBalance(ctx, tenantID)
	if err != nil {
		return err
	}
	if hasBalance {
		return fmt.Errorf("%w: tenant %s still holds accounts with nonzero balance", apperrors.ErrConflict, tenantID)
	}

	err = s.txManager.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.tenantRepo.DeactivateTenant(ctx, tenantID, actor.ID); err != nil {
			return err
		}
		_, err := s.audit.Log(ctx, portssvc.AuditEvent{
			TenantID:     tenantID,
			Actor:        actor,
			Action:       domain.ActionTenantDeactivated,
			ResourceType: "tenant",
			ResourceID:   tenantID,
			Description:  "tenant deactivated",
		})
		return err
	})
	if err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// graph returns the cached adjacency, loading it from the store when stale.
func (s *TenantService) graph(ctx context.Context) (map[string]domain.Tenant, map[string][]string, error) {
	s.mu.RLock()
	if s.loaded {
		byID, children := s.byID, s.children
		s.mu.RUnlock()
		return byID, children, nil
	}
	s.mu.RUnlock()

	tenants, err := s.tenantRepo.ListTenants(ctx)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]domain.Tenant, len(tenants))
	children := make(map[string][]string)
	for _, t := range tenants {
		byID[t.TenantID] = t
		if !t.IsRoot() {
			children[*t.ParentTenantID] = append(children[*t.ParentTenantID], t.TenantID)
		}
	}

	s.mu.Lock()
	s.byID = byID
	s.children = children
	s.loaded = true
	s.mu.Unlock()
	return byID, children, nil
}

// invalidate drops the adjacency cache after a structural write.
func (s *TenantService) invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.byID = nil
	s.children = nil
	s.mu.Unlock()
}

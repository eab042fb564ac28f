package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Shah039zaib/b2automate/app/models"
)

// PlanRepository defines the read side of the plan catalog
type PlanRepository interface {
	GetByID(ctx context.Context, id uint) (*models.BillingPlan, error)
	GetByProviderPriceRef(ctx context.Context, priceRef string) (*models.BillingPlan, error)
	ListActive(ctx context.Context) ([]models.BillingPlan, error)
}

// TenantRepository defines the tenant reads used by the operator API
type TenantRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Tenant, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Plan   PlanRepository
	Tenant TenantRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Plan:   NewPlanRepository(db),
		Tenant: NewTenantRepository(db),
	}
}

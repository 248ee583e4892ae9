package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// Querier defines the data access required for reporting.
type Querier interface {
	CountPatients(ctx context.Context) (int, error)
	RecentPatients(ctx context.Context, limit int) ([]domain.Patient, error)
	CountProducts(ctx context.Context) (int, error)
	LowStockProducts(ctx context.Context) ([]domain.Product, error)
	CountInvoices(ctx context.Context, status domain.InvoiceStatus) (int, error)
	PaidRevenueBetween(ctx context.Context, from, to time.Time) (domain.Money, error)
	CategorySummary(ctx context.Context) ([]store.CategoryStat, error)
}

// Dashboard is the front desk summary.
type Dashboard struct {
	TotalPatients    int              `json:"totalPatients"`
	TotalProducts    int              `json:"totalProducts"`
	LowStockProducts int              `json:"lowStockProducts"`
	UnpaidInvoices   int              `json:"unpaidInvoices"`
	RevenueThisMonth domain.Money     `json:"revenueThisMonth"`
	// RecentPatients is read on every call; only the counts are cached.
	RecentPatients   []domain.Patient `json:"recentPatients"`
}

// RecentPatientLimit caps the dashboard's newest patient list.
const RecentPatientLimit = 5

// MonthRevenue is the paid revenue of one calendar month.
type MonthRevenue struct {
	Month int          `json:"month"`
	Total domain.Money `json:"total"`
}

// Service provides cached reporting over the clinic store. Month boundaries
// are taken in the location of Now.
type Service struct {
	Q   Querier
	R   *redis.Client
	TTL time.Duration
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Dashboard returns headline counts, the paid revenue of the current month
// and the newest patients.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	if s == nil || s.Q == nil {
		return Dashboard{}, fmt.Errorf("analytics service not configured")
	}
	out, err := s.dashboardCounts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	if out.RecentPatients, err = s.Q.RecentPatients(ctx, RecentPatientLimit); err != nil {
		return Dashboard{}, err
	}
	if out.RecentPatients == nil {
		out.RecentPatients = []domain.Patient{}
	}
	return out, nil
}

func (s *Service) dashboardCounts(ctx context.Context) (Dashboard, error) {
	now := s.now()
	key := cacheKey("an", "dashboard", now.Format("2006-01"))
	var out Dashboard
	if s.load(ctx, key, &out) {
		return out, nil
	}
	var err error
	if out.TotalPatients, err = s.Q.CountPatients(ctx); err != nil {
		return Dashboard{}, err
	}
	if out.TotalProducts, err = s.Q.CountProducts(ctx); err != nil {
		return Dashboard{}, err
	}
	low, err := s.Q.LowStockProducts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	out.LowStockProducts = len(low)
	if out.UnpaidInvoices, err = s.Q.CountInvoices(ctx, domain.StatusUnpaid); err != nil {
		return Dashboard{}, err
	}
	from := monthStart(now)
	if out.RevenueThisMonth, err = s.Q.PaidRevenueBetween(ctx, from, from.AddDate(0, 1, 0)); err != nil {
		return Dashboard{}, err
	}
	s.store(ctx, key, out)
	return out, nil
}

// MonthlyRevenue returns twelve entries with the paid revenue of each month of year.
func (s *Service) MonthlyRevenue(ctx context.Context, year int) ([]MonthRevenue, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "revenue", year)
	var out []MonthRevenue
	if s.load(ctx, key, &out) {
		return out, nil
	}
	loc := s.now().Location()
	out = make([]MonthRevenue, 0, 12)
	for m := time.January; m <= time.December; m++ {
		from := time.Date(year, m, 1, 0, 0, 0, 0, loc)
		total, err := s.Q.PaidRevenueBetween(ctx, from, from.AddDate(0, 1, 0))
		if err != nil {
			return nil, err
		}
		out = append(out, MonthRevenue{Month: int(m), Total: total})
	}
	s.store(ctx, key, out)
	return out, nil
}

// Categories returns product count and stock per category.
func (s *Service) Categories(ctx context.Context) ([]store.CategoryStat, error) {
	if s == nil || s.Q == nil {
		return nil, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "categories")
	var out []store.CategoryStat
	if s.load(ctx, key, &out) {
		return out, nil
	}
	out, err := s.Q.CategorySummary(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.CategoryStat{}
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *Service) load(ctx context.Context, key string, dst any) bool {
	if s.R == nil || s.TTL <= 0 {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		obs.CountStatsCache("miss")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		obs.CountStatsCache("miss")
		return false
	}
	obs.CountStatsCache("hit")
	return true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}

package voucher

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/store/memory"
	"github.com/noah-isme/backend-phongkham/internal/store/storetest"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return &Service{Store: st, Now: func() time.Time { return testNow }}, st
}

func TestServiceValidateDoesNotConsumeUsage(t *testing.T) {
	svc, st := newTestService(t)
	v := storetest.SeedVoucher(t, st, activeVoucher(func(v *domain.Voucher) {
		v.UsageLimit = intPtr(3)
		v.UsageCount = 1
	}))

	for i := 0; i < 5; i++ {
		res, err := svc.Validate(context.Background(), " km10 ", 200_000)
		require.NoError(t, err)
		require.Equal(t, domain.Money(20_000), res.Discount)
	}

	got, err := st.GetVoucher(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UsageCount)
}

func TestServiceValidateUnknownCode(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Validate(context.Background(), "NOPE", 100)
	require.ErrorIs(t, err, ErrNotFound)

	appErr := ToAppError(err)
	require.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestServiceCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	zero := 0
	in := Input{
		Code:       " tet2026 ",
		Type:       domain.VoucherFixed,
		Value:      50_000,
		StartDate:  testNow,
		EndDate:    testNow.Add(72 * time.Hour),
		UsageLimit: &zero,
	}
	v, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "TET2026", v.Code)
	require.True(t, v.IsActive)
	require.Nil(t, v.UsageLimit)

	_, err = svc.Create(ctx, in)
	appErr := common.AsAppError(err)
	require.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	require.Equal(t, "DUPLICATE_CODE", appErr.Code)
}

func TestServiceCreateRejectsBadRules(t *testing.T) {
	svc, _ := newTestService(t)
	cases := map[string]Input{
		"percent over 100": {Code: "A", Type: domain.VoucherPercent, Value: 120, StartDate: testNow, EndDate: testNow},
		"inverted window":  {Code: "B", Type: domain.VoucherFixed, Value: 1, StartDate: testNow, EndDate: testNow.Add(-time.Hour)},
		"missing window":   {Code: "C", Type: domain.VoucherFixed, Value: 1},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), in)
			require.Equal(t, http.StatusBadRequest, common.AsAppError(err).HTTPStatus)
		})
	}
}

func TestServiceUpdateIsPartial(t *testing.T) {
	svc, st := newTestService(t)
	v := storetest.SeedVoucher(t, st, activeVoucher(func(v *domain.Voucher) {
		v.MaxDiscount = money(100_000)
		v.UsageCount = 4
	}))

	off := false
	zero := domain.Money(0)
	out, err := svc.Update(context.Background(), v.ID, Patch{IsActive: &off, MaxDiscount: &zero})
	require.NoError(t, err)
	require.False(t, out.IsActive)
	require.Nil(t, out.MaxDiscount)
	require.Equal(t, domain.Money(10), out.Value)
	require.Equal(t, 4, out.UsageCount)

	_, err = svc.Update(context.Background(), "missing", Patch{})
	require.Equal(t, http.StatusNotFound, common.AsAppError(err).HTTPStatus)
}

func TestServiceDelete(t *testing.T) {
	svc, st := newTestService(t)
	v := storetest.SeedVoucher(t, st, activeVoucher(nil))
	require.NoError(t, svc.Delete(context.Background(), v.ID))
	require.Equal(t, http.StatusNotFound, common.AsAppError(svc.Delete(context.Background(), v.ID)).HTTPStatus)
}

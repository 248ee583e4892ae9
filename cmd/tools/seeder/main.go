// Command seeder loads demo patients, products and vouchers through the
// configured store. Rows whose code already exists are skipped.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/app"
	"github.com/noah-isme/backend-phongkham/internal/config"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "seeder").Logger()
	if cfg.DBDriver == config.DriverMemory {
		logger.Fatal().Msg("seeding the memory store has no lasting effect, pick sqlite or postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	st, err := app.OpenStore(ctx, cfg, "phongkham-seeder")
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	if err := seed(ctx, st, logger, time.Now()); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logger.Info().Msg("seeding completed")
}

func seed(ctx context.Context, q store.Queries, log zerolog.Logger, now time.Time) error {
	for _, p := range demoPatients() {
		_, err := q.CreatePatient(ctx, p)
		if err := skipDuplicate(log, "patient", p.Code, err); err != nil {
			return err
		}
	}
	for _, p := range demoProducts() {
		_, err := q.CreateProduct(ctx, p)
		if err := skipDuplicate(log, "product", p.Code, err); err != nil {
			return err
		}
	}
	for _, v := range demoVouchers(now) {
		_, err := q.CreateVoucher(ctx, v)
		if err := skipDuplicate(log, "voucher", v.Code, err); err != nil {
			return err
		}
	}
	return nil
}

func skipDuplicate(log zerolog.Logger, kind, code string, err error) error {
	switch {
	case err == nil:
		log.Info().Str("kind", kind).Str("code", code).Msg("seeded")
		return nil
	case errors.Is(err, store.ErrDuplicate):
		log.Info().Str("kind", kind).Str("code", code).Msg("already present")
		return nil
	default:
		return err
	}
}

func demoPatients() []domain.Patient {
	return []domain.Patient{
		{Code: "BN000000000001", FullName: "Nguyễn Văn A", Phone: "0901234567"},
		{Code: "BN000000000002", FullName: "Trần Thị B", Phone: "0912345678"},
		{Code: "BN000000000003", FullName: "Lê Văn C", Phone: "0923456789"},
		{Code: "BN000000000004", FullName: "Phạm Thị D", Phone: "0934567890"},
		{Code: "BN000000000005", FullName: "Hoàng Văn E", Phone: "0945678901"},
	}
}

func demoProducts() []domain.Product {
	expiry := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	return []domain.Product{
		{
			Code: "L001", Name: "Tròng kính cận thị", Category: domain.CategoryGlasses,
			Manufacturer: "Essilor", Material: "Chống AS xanh, đôi màu",
			SphRange: "-20.00 đến +20.00", CylRange: "0.00 đến -8.00",
			Price: 300_000, Quantity: 50, MinStock: 10,
		},
		{
			Code: "L002", Name: "Tròng kính viễn thị", Category: domain.CategoryGlasses,
			Manufacturer: "Hoya", Material: "Chống AS xanh",
			SphRange: "-10.00 đến +10.00", CylRange: "0.00 đến -6.00",
			Price: 400_000, Quantity: 30, MinStock: 5,
		},
		{
			Code: "G001", Name: "Gọng kính kim loại bạc", Category: domain.CategoryLenses,
			Manufacturer: "Kim loại", Material: "Bạc",
			Price: 350_000, Quantity: 25, MinStock: 5,
		},
		{
			Code: "M001", Name: "Thuốc nhỏ mắt", Category: domain.CategoryMedicine,
			Price: 50_000, Quantity: 100, MinStock: 20, ExpiresAt: &expiry,
		},
	}
}

func demoVouchers(now time.Time) []domain.Voucher {
	maxDiscount := domain.Money(200_000)
	limit := 100
	start := now.AddDate(0, 0, -1)
	end := now.AddDate(0, 3, 0)
	return []domain.Voucher{
		{
			Code: "KHAIMAT10", Description: "Giảm 10% cho đơn kính", Type: domain.VoucherPercent,
			Value: 10, MinAmount: 500_000, MaxDiscount: &maxDiscount,
			StartDate: start, EndDate: end, UsageLimit: &limit, IsActive: true,
		},
		{
			Code: "GIAM50K", Description: "Giảm 50.000đ", Type: domain.VoucherFixed,
			Value: 50_000, MinAmount: 200_000,
			StartDate: start, EndDate: end, IsActive: true,
		},
	}
}

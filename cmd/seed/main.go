package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/clinic-booking/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedTimeSlots(context.Background(), pool, 14); err != nil {
		log.Fatalf("seed time slots: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// seedTimeSlots fills the next `days` weekdays with half-hour slots between
// 09:00 and 17:00.
func seedTimeSlots(ctx context.Context, pool *pgxpool.Pool, days int) error {
	log.Printf("seeding slots for %d days", days)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	day := time.Now().Truncate(24 * time.Hour)
	seeded := 0

	for d := 0; d < days; d++ {
		day = day.Add(24 * time.Hour)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		opening := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.Local)
		for i := 0; i < 16; i++ {
			start := opening.Add(time.Duration(i) * 30 * time.Minute)
			end := start.Add(30 * time.Minute)

			_, err := tx.Exec(ctx, `
				INSERT INTO time_slots (id, start_time, end_time, status, created_at, updated_at)
				VALUES ($1, $2, $3, 'available', now(), now())
			`, uuid.New(), start, end)
			if err != nil {
				return err
			}
			seeded++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("slots seeded: %d", seeded)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/db"
	"github.com/clinicore/clinic-scheduling/internal/scheduling"
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

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	log.Println("schema ensured")

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctorAvailability(context.Background(), pool, 100); err != nil {
		log.Fatalf("seed doctor availability: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctorAvailability(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctor availabilities", count)

	// Typical clinic shift patterns; a doctor gets one or two of them.
	shifts := []scheduling.TimeWindow{
		{Start: scheduling.NewClockTime(9, 0), End: scheduling.NewClockTime(12, 0)},
		{Start: scheduling.NewClockTime(13, 0), End: scheduling.NewClockTime(17, 0)},
		{Start: scheduling.NewClockTime(17, 30), End: scheduling.NewClockTime(20, 0)},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		doctorID := uuid.New()

		weekdays := pickWeekdays()
		windows := []scheduling.TimeWindow{shifts[gofakeit.Number(0, len(shifts)-1)]}
		if gofakeit.Bool() {
			windows = append(windows, shifts[gofakeit.Number(0, len(shifts)-1)])
		}

		windowsJSON, err := json.Marshal(windows)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctor_availability (doctor_id, weekdays, windows, consulting, updated_at)
			VALUES ($1, $2, $3, false, now())
		`, doctorID, weekdays, windowsJSON)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctor availabilities seeded")
	return nil
}

// pickWeekdays returns three to five distinct working days, Monday through
// Saturday, as time.Weekday ordinals.
func pickWeekdays() []int32 {
	days := []int{1, 2, 3, 4, 5, 6}
	gofakeit.ShuffleInts(days)
	n := gofakeit.Number(3, 5)

	out := make([]int32, 0, n)
	for _, d := range days[:n] {
		out = append(out, int32(d))
	}
	return out
}

package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedInterests = []string{
		"golang", "rust", "distributed systems", "design systems", "ux research",
		"climbing", "coffee", "startups", "fundraising", "ml", "product strategy", "jazz",
	}
	seedCompanies = []string{"Acme", "Globex", "Initech", "Umbrella", ""}
	seedRoles     = []string{"backend engineer", "product designer", "product manager", "founder", "angel investor", "marketing"}
)

// seededTables are cleared child-first.
var seededTables = []string{
	"comments", "likes", "posts", "messages", "friendships",
	"matches", "match_epochs", "registrations", "profiles",
}

// SeedDemoData resets the database and populates it with demo attendees.
//
// Behavior:
//  1. Clears every table this service owns.
//  2. Creates `attendees` profiles with 2-4 random interests, a company and a role.
//  3. Registers all of them to event 1 and every second one to event 2.
//  4. Creates one post per five attendees and a handful of pending friend requests.
//
// Compatible with MySQL, PostgreSQL and SQLite.
func SeedDemoData(db *gorm.DB, attendees int, log *slog.Logger) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range seededTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	resetSequences(db)
	log.Info("cleared existing data")

	for i := 1; i <= attendees; i++ {
		p := Profile{
			ID:          uint64(i),
			DisplayName: fmt.Sprintf("attendee%d", i),
			Interests:   pick(r, seedInterests, 2+r.Intn(3)),
			Company:     seedCompanies[r.Intn(len(seedCompanies))],
			Role:        seedRoles[r.Intn(len(seedRoles))],
		}
		if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}

		regs := []Registration{{EventID: 1, UserID: p.ID}}
		if i%2 == 0 {
			regs = append(regs, Registration{EventID: 2, UserID: p.ID})
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&regs).Error; err != nil {
			return fmt.Errorf("failed to seed registration: %w", err)
		}
	}
	log.Info("seeded profiles", "count", attendees)

	for i := 1; i <= attendees; i += 5 {
		post := Post{UserID: uint64(i), Content: fmt.Sprintf("Hello from attendee%d!", i)}
		if err := db.Create(&post).Error; err != nil {
			return fmt.Errorf("failed to seed post: %w", err)
		}
	}

	requests := 0
	for i := 1; i < attendees; i += 3 {
		low, high := CanonicalPair(uint64(i), uint64(i+1))
		f := Friendship{RequesterID: uint64(i), AddresseeID: uint64(i + 1), PairLow: low, PairHigh: high, Status: FriendshipPending}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&f).Error; err != nil {
			return fmt.Errorf("failed to seed friendship: %w", err)
		}
		requests++
	}
	log.Info("seeded posts and friend requests", "requests", requests)

	return nil
}

func resetSequences(db *gorm.DB) {
	switch db.Dialector.Name() {
	case "mysql":
		for _, table := range []string{"profiles", "posts", "comments", "friendships", "matches"} {
			db.Exec("ALTER TABLE " + table + " AUTO_INCREMENT = 1")
		}
	case "postgres":
		for _, table := range []string{"profiles", "posts", "comments", "friendships", "matches"} {
			db.Exec("ALTER SEQUENCE " + table + "_id_seq RESTART WITH 1")
		}
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence")
	}
}

func pick(r *rand.Rand, from []string, n int) []string {
	idx := r.Perm(len(from))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, from[i])
	}
	return out
}

// Command seed loads a demo data set: one boss, a teacher and a handful
// of students per school. Intended for local development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/internal/repository"
	"github.com/healthy-futures/contest-api/pkg/config"
	"github.com/healthy-futures/contest-api/pkg/database"
)

func main() {
	var (
		password string
		schools  string
		perClass int
	)
	flag.StringVar(&password, "password", "contest123", "password for all seeded accounts")
	flag.StringVar(&schools, "schools", "colony,goldenview", "comma separated school keys")
	flag.IntVar(&perClass, "students", 5, "students per school")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	repo := repository.NewUserRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	seed := func(user *models.User) {
		user.PasswordHash = string(hash)
		user.Active = true
		if err := repo.Create(ctx, user); err != nil {
			log.Printf("skip %s: %v", user.Email, err)
			return
		}
		log.Printf("created %-8s %s", user.Role, user.Email)
	}

	seed(&models.User{Email: "boss@contest.test", FullName: "Contest Boss", Role: models.RoleBoss})

	for _, school := range strings.Split(schools, ",") {
		school = strings.TrimSpace(school)
		if school == "" {
			continue
		}
		seed(&models.User{
			Email:    fmt.Sprintf("teacher@%s.test", school),
			FullName: fmt.Sprintf("Teacher %s", school),
			Role:     models.RoleTeacher,
			School:   school,
		})
		for i := 1; i <= perClass; i++ {
			seed(&models.User{
				Email:    fmt.Sprintf("student%d@%s.test", i, school),
				FullName: fmt.Sprintf("Student %d %s", i, school),
				Role:     models.RoleStudent,
				School:   school,
				Grade:    fmt.Sprintf("%d", 5+i%4),
				Goal:     "Move more, drink less sugar",
			})
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/pressly/goose/v3"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-municipal/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-municipal/migrations"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/database"
	"github.com/ovaphlow/pitchfork/service-municipal/pkg/utilities"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar().Named("migrate")

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		sugar.Fatalf("goose dialect: %v", err)
	}

	switch args[0] {
	case "up":
		if err := goose.Up(db.DB, "."); err != nil {
			sugar.Fatalf("apply migrations: %v", err)
		}
		sugar.Info("migrations applied")
	case "down":
		if err := goose.Down(db.DB, "."); err != nil {
			sugar.Fatalf("roll back migration: %v", err)
		}
		sugar.Info("last migration rolled back")
	case "status":
		if err := goose.Status(db.DB, "."); err != nil {
			sugar.Fatalf("migration status: %v", err)
		}
	case "bootstrap-admin":
		in := user.SignupInput{
			Username: os.Getenv("ADMIN_USERNAME"),
			Email:    os.Getenv("ADMIN_EMAIL"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		}
		svc := user.NewUserService(userrepo.NewUserRepo(db), utilities.BcryptHasher{Cost: 12}, clockwork.NewRealClock())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		created, err := svc.EnsureAdmin(ctx, in)
		if err != nil {
			sugar.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			sugar.Infow("admin account created", "username", in.Username, "email", in.Email)
		} else {
			sugar.Info("admin account already present")
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate <command>")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  up               apply all pending migrations")
	fmt.Fprintln(os.Stderr, "  down             roll back the latest migration")
	fmt.Fprintln(os.Stderr, "  status           print migration status")
	fmt.Fprintln(os.Stderr, "  bootstrap-admin  create the first admin from ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD")
}

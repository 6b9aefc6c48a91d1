package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dphilippe/vitality-server/cmd/api"
	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {

	migrations := map[interface{}]string{
		&models.Patient{}:             "Patient",
		&models.Practitioner{}:        "Practitioner",
		&models.PaymentGate{}:         "PaymentGate",
		&models.CaptureSession{}:      "CaptureSession",
		&models.BlockedDay{}:          "BlockedDay",
		&models.TreatmentProgram{}:    "TreatmentProgram",
		&models.MealSlot{}:            "MealSlot",
		&models.Notification{}:        "Notification",
		&models.Device{}:              "Device",
		&models.NotificationHistory{}: "NotificationHistory",
		&models.Supplement{}:          "Supplement",
		&models.Order{}:               "Order",
		&models.OrderItem{}:           "OrderItem",
		&models.PaymentReceipt{}:      "PaymentReceipt",
		&models.Transaction{}:         "Transaction",
		&models.MediaAsset{}:          "MediaAsset",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	if err := seedBlockedDays(DB); err != nil {
		return err
	}
	if err := seedPractitioner(DB); err != nil {
		return err
	}

	directories := []string{
		"uploads/receipts",
	}

	for _, dir := range directories {
		if err := createDirectoryIfNotExist(dir); err != nil {
			log.Fatalf("Error creating directory %s: %v", dir, err)
		}
		log.Printf("Directory %s created/verified", dir)
	}

	log.Println("All migrations and directory setup completed successfully")
	return nil
}

// seedBlockedDays installs the default clinic closures on a fresh database.
func seedBlockedDays(DB *gorm.DB) error {
	var count int64
	if err := DB.Model(&models.BlockedDay{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, day := range []int{7, 14} {
		if err := DB.Create(&models.BlockedDay{Day: day}).Error; err != nil {
			return fmt.Errorf("error seeding blocked day %d: %w", day, err)
		}
	}
	log.Println("Seeded default blocked days")
	return nil
}

func seedPractitioner(DB *gorm.DB) error {
	email := os.Getenv("PRACTITIONER_EMAIL")
	password := os.Getenv("PRACTITIONER_PASSWORD")
	if email == "" || password == "" {
		log.Println("PRACTITIONER_EMAIL/PRACTITIONER_PASSWORD not set, skipping practitioner seed")
		return nil
	}

	var existing models.Practitioner
	if err := DB.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	practitioner := models.Practitioner{
		Email:        email,
		FullName:     os.Getenv("PRACTITIONER_NAME"),
		PasswordHash: string(hash),
	}
	if err := DB.Create(&practitioner).Error; err != nil {
		return fmt.Errorf("error seeding practitioner: %w", err)
	}
	log.Printf("Seeded practitioner account %s", email)
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case <-quit:
		log.Println("Shutting down server...")
		cancel()
		if err := <-done; err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		tables = []interface{}{
			&models.OrderItem{},
			&models.PaymentReceipt{},
			&models.Order{},
			&models.Transaction{},
			&models.MealSlot{},
			&models.TreatmentProgram{},
			&models.Notification{},
			&models.Device{},
			&models.NotificationHistory{},
			&models.PaymentGate{},
			&models.CaptureSession{},
			&models.BlockedDay{},
			&models.Supplement{},
			&models.MediaAsset{},
			&models.Patient{},
			&models.Practitioner{},
		}
	}

	log.Println("Dropping tables...")

	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	return nil
}

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		for _, table := range splitTableNames(tableNames) {
			switch strings.TrimSpace(table) {
			case "Patient":
				tables = append(tables, &models.Patient{})
			case "Practitioner":
				tables = append(tables, &models.Practitioner{})
			case "PaymentGate":
				tables = append(tables, &models.PaymentGate{})
			case "CaptureSession":
				tables = append(tables, &models.CaptureSession{})
			case "BlockedDay":
				tables = append(tables, &models.BlockedDay{})
			case "TreatmentProgram":
				tables = append(tables, &models.TreatmentProgram{})
			case "MealSlot":
				tables = append(tables, &models.MealSlot{})
			case "Notification":
				tables = append(tables, &models.Notification{})
			case "Device":
				tables = append(tables, &models.Device{})
			case "NotificationHistory":
				tables = append(tables, &models.NotificationHistory{})
			case "Supplement":
				tables = append(tables, &models.Supplement{})
			case "Order":
				tables = append(tables, &models.Order{})
			case "OrderItem":
				tables = append(tables, &models.OrderItem{})
			case "PaymentReceipt":
				tables = append(tables, &models.PaymentReceipt{})
			case "Transaction":
				tables = append(tables, &models.Transaction{})
			case "MediaAsset":
				tables = append(tables, &models.MediaAsset{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}

	log.Println("Database cleared successfully")
}

func splitTableNames(tableNames string) []string {
	return strings.Split(tableNames, ",")
}

// Command main runs the demo-data seeder for the VetCare messaging database.
package main

import (
	"flag"
	"log"

	"vetcare/internal/config"
	"vetcare/internal/database"
	"vetcare/internal/seed"
)

func main() {
	opts := seed.DefaultOptions()
	flag.IntVar(&opts.NumOwners, "owners", opts.NumOwners, "Number of pet owners to create")
	flag.IntVar(&opts.NumVets, "vets", opts.NumVets, "Number of veterinarians to create")
	flag.IntVar(&opts.NumStaff, "staff", opts.NumStaff, "Number of staff members to create")
	flag.IntVar(&opts.MessagesPerConv, "messages", opts.MessagesPerConv, "Messages per conversation")
	flag.IntVar(&opts.MaxDays, "days", opts.MaxDays, "Spread message history over this many days")
	flag.BoolVar(&opts.ShouldClean, "clean", opts.ShouldClean, "Clean database before seeding")
	flag.Parse()

	log.Println("🌱 VetCare Messaging Seeder")
	log.Printf("Target: %d owners, %d vets, %d staff, %d messages/conversation, clean=%v",
		opts.NumOwners, opts.NumVets, opts.NumStaff, opts.MessagesPerConv, opts.ShouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.NewSeeder(db, opts).Run(); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! The database now holds demo conversations.")
}

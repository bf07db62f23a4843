// Package seed provides helpers to create demo data for development and
// testing. It populates pet owners, clinic staff, their conversations and a
// realistic message history with unread counters that add up.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"vetcare/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options controls how much data the seeder generates.
type Options struct {
	NumOwners        int
	NumVets          int
	NumStaff         int
	MessagesPerConv  int
	MaxDays          int
	ShouldClean      bool
	WithNotification bool
}

// DefaultOptions returns a small but complete data set.
func DefaultOptions() Options {
	return Options{
		NumOwners:        20,
		NumVets:          4,
		NumStaff:         2,
		MessagesPerConv:  12,
		MaxDays:          30,
		ShouldClean:      true,
		WithNotification: true,
	}
}

var (
	petNames = []string{
		"Bella", "Max", "Luna", "Charlie", "Lucy", "Cooper", "Daisy", "Milo",
		"Rocky", "Sadie", "Buddy", "Molly", "Bailey", "Stella", "Oliver",
		"Penny", "Duke", "Rosie", "Bear", "Ruby", "Tucker", "Lily", "Oreo",
	}

	ownerMessages = []string{
		"Hi, %s has been scratching their ear a lot since yesterday. Should I be worried?",
		"%s finished the antibiotics this morning. What's next?",
		"Can we move %s's appointment to later this week?",
		"%s is eating normally again, thanks for checking in!",
		"I noticed a small lump on %s's back leg. Could you take a look at the next visit?",
		"%s hasn't been drinking much water today.",
		"The new food seems to agree with %s so far.",
		"Quick question: is it normal for %s to sleep this much after the vaccine?",
	}

	vetMessages = []string{
		"Thanks for the update on %s. Keep monitoring and let me know if anything changes.",
		"%s's lab results came back normal. No further action needed.",
		"Please keep %s on the current dose for another five days.",
		"That sounds like a mild reaction. If %s is still lethargic tomorrow, bring them in.",
		"We have an opening Thursday at 10:30 for %s.",
		"Remember to bring %s's vaccination record to the next appointment.",
		"A little swelling at the injection site is normal for %s. It should settle in a day or two.",
	}
)

// Seeder creates and deletes demo data.
type Seeder struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

// NewSeeder binds a seeder to the database.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:   db,
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the full seeding pipeline.
func (s *Seeder) Run() error {
	if s.opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return fmt.Errorf("clear existing data: %w", err)
		}
	}

	owners, err := s.CreateUsers(s.opts.NumOwners, models.RolePetOwner)
	if err != nil {
		return fmt.Errorf("create owners: %w", err)
	}
	vets, err := s.CreateUsers(s.opts.NumVets, models.RoleVeterinarian)
	if err != nil {
		return fmt.Errorf("create veterinarians: %w", err)
	}
	staff, err := s.CreateUsers(s.opts.NumStaff, models.RoleStaff)
	if err != nil {
		return fmt.Errorf("create staff: %w", err)
	}
	log.Printf("✓ %d owners, %d vets, %d staff created", len(owners), len(vets), len(staff))

	clinicSide := append(append([]*models.User{}, vets...), staff...)
	conversations := 0
	for _, owner := range owners {
		// Every owner talks to one clinic member; some to two.
		partners := []*models.User{clinicSide[s.rng.Intn(len(clinicSide))]}
		if s.rng.Intn(3) == 0 && len(clinicSide) > 1 {
			second := clinicSide[s.rng.Intn(len(clinicSide))]
			if second.ID != partners[0].ID {
				partners = append(partners, second)
			}
		}
		for _, partner := range partners {
			if err := s.CreateConversation(owner, partner); err != nil {
				return fmt.Errorf("conversation %s<->%s: %w", owner.Username, partner.Username, err)
			}
			conversations++
		}
	}
	log.Printf("✓ %d conversations with history created", conversations)
	return nil
}

// ClearAll removes all seeded rows in dependency order.
func (s *Seeder) ClearAll() error {
	tables := []interface{}{
		&models.MessageRead{},
		&models.Message{},
		&models.Notification{},
		&models.ConversationParticipant{},
		&models.Conversation{},
		&models.User{},
	}
	for _, table := range tables {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}

// CreateUsers persists n users with the given role.
func (s *Seeder) CreateUsers(n int, role models.Role) ([]*models.User, error) {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		username := gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(10, 99))
		if role == models.RoleVeterinarian {
			username = "dr" + gofakeit.LastName() + fmt.Sprintf("%d", gofakeit.Number(10, 99))
		}
		user := &models.User{
			Username: username,
			Email:    gofakeit.Email(),
			Phone:    gofakeit.Phone(),
			Role:     role,
		}
		if err := s.db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// CreateConversation builds a conversation between two users together with
// participant rows, a message history, read receipts and matching unread
// counters.
func (s *Seeder) CreateConversation(owner, clinic *models.User) error {
	conv := &models.Conversation{Status: models.ConversationActive}
	if err := s.db.Create(conv).Error; err != nil {
		return err
	}
	if err := s.db.Model(conv).Association("Participants").Append(owner, clinic); err != nil {
		return err
	}

	pet := petNames[s.rng.Intn(len(petNames))]
	maxDays := s.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	start := time.Now().Add(-time.Duration(s.rng.Intn(maxDays)+1) * 24 * time.Hour)

	count := s.opts.MessagesPerConv
	if count <= 0 {
		count = 8
	}

	// The tail of each history is left unread for one side so unread
	// badges show up in the UI.
	unreadTail := s.rng.Intn(3)
	unreadFor := owner
	if s.rng.Intn(2) == 0 {
		unreadFor = clinic
	}

	var last *models.Message
	at := start
	unread := 0
	for i := 0; i < count; i++ {
		at = at.Add(time.Duration(s.rng.Intn(180)+1) * time.Minute)
		sender, template := owner, ownerMessages[s.rng.Intn(len(ownerMessages))]
		if i%2 == 1 {
			sender, template = clinic, vetMessages[s.rng.Intn(len(vetMessages))]
		}
		msg := &models.Message{
			ConversationID: conv.ID,
			SenderID:       sender.ID,
			Content:        fmt.Sprintf(template, pet),
			CreatedAt:      at,
		}
		if err := s.db.Create(msg).Error; err != nil {
			return err
		}

		reads := []models.MessageRead{{MessageID: msg.ID, UserID: sender.ID, ReadAt: at}}
		other := owner
		if sender == owner {
			other = clinic
		}
		inTail := i >= count-unreadTail && other.ID == unreadFor.ID
		if inTail {
			unread++
		} else {
			reads = append(reads, models.MessageRead{MessageID: msg.ID, UserID: other.ID, ReadAt: at.Add(time.Minute)})
		}
		if err := s.db.Create(&reads).Error; err != nil {
			return err
		}
		last = msg
	}

	for _, user := range []*models.User{owner, clinic} {
		participant := map[string]interface{}{"last_read_at": at, "unread_count": 0}
		if user.ID == unreadFor.ID && unread > 0 {
			participant["unread_count"] = unread
		}
		err := s.db.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conv.ID, user.ID).
			Updates(participant).Error
		if err != nil {
			return err
		}
	}

	updates := map[string]interface{}{
		"last_message":      last.Content,
		"last_message_time": last.CreatedAt,
	}
	if err := s.db.Model(conv).Updates(updates).Error; err != nil {
		return err
	}

	if s.opts.WithNotification && unread > 0 {
		notification := &models.Notification{
			RecipientID: unreadFor.ID,
			Type:        models.NotificationMessage,
			Content:     fmt.Sprintf("New message about %s", pet),
			RelatedID:   &conv.ID,
			OnModel:     "Conversation",
			CreatedAt:   last.CreatedAt,
		}
		if err := s.db.Create(notification).Error; err != nil {
			return err
		}
	}
	return nil
}

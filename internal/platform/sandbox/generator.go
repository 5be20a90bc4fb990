// Package sandbox produces reproducible synthetic appointments for demo and
// development tenants.
package sandbox

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rohanchauhan123/appointment-system/pkg/money"
)

var (
	firstNames = []string{
		"Aarav", "Ananya", "Rohan", "Priya", "Vikram", "Sneha", "Arjun", "Kavya",
		"Rahul", "Isha", "Karan", "Meera", "Aditya", "Pooja", "Siddharth", "Neha",
	}
	lastNames = []string{
		"Sharma", "Patel", "Reddy", "Iyer", "Gupta", "Nair", "Singh", "Mehta",
		"Kapoor", "Joshi", "Das", "Menon",
	}
	branches = []string{
		"Central Lab", "North Wing", "City Hospital Annex", "Lakeside Clinic", "Airport Road",
	}
	proNotes = []string{
		"Referred by Dr. Rao", "Corporate package", "Home collection", "Senior citizen discount",
		"Fasting sample", "Repeat test",
	}
)

type labTest struct {
	name  string
	price money.Amount
}

var labTests = []labTest{
	{"Complete Blood Count", 45000},
	{"Lipid Profile", 80000},
	{"Thyroid Profile", 65000},
	{"HbA1c", 55000},
	{"Liver Function Test", 90000},
	{"Kidney Function Test", 85000},
	{"Vitamin D", 150000},
	{"MRI Brain", 850000},
	{"CT Chest", 600000},
	{"Chest X-Ray", 40000},
	{"Ultrasound Abdomen", 180000},
	{"ECG", 30000},
}

// Sample is one synthetic appointment.
type Sample struct {
	PatientName     string
	TestName        string
	BranchLocation  string
	AppointmentDate time.Time
	Amount          money.Amount
	AdvanceAmount   money.Amount
	ProDetails      *string
	ContactNumber   string
}

// DataGenerator produces deterministic samples for a given seed.
type DataGenerator struct {
	rng *rand.Rand
	now time.Time
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen. Appointment dates fall within two weeks of
// now.
func NewDataGenerator(seed int64, now time.Time) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed)), now: now}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("9%09d", g.rng.Intn(1_000_000_000))
}

// Sample returns the next synthetic appointment.
func (g *DataGenerator) Sample() Sample {
	test := labTests[g.rng.Intn(len(labTests))]

	// advance is 0%, 25%, 50% or 100% of the price
	var advance money.Amount
	switch g.rng.Intn(4) {
	case 1:
		advance = test.price / 4
	case 2:
		advance = test.price / 2
	case 3:
		advance = test.price
	}

	day := g.now.UTC().Truncate(24*time.Hour).AddDate(0, 0, g.rng.Intn(28)-14)
	slot := time.Duration(8+g.rng.Intn(10))*time.Hour + time.Duration(g.rng.Intn(4)*15)*time.Minute

	s := Sample{
		PatientName:     g.pick(firstNames) + " " + g.pick(lastNames),
		TestName:        test.name,
		BranchLocation:  g.pick(branches),
		AppointmentDate: day.Add(slot),
		Amount:          test.price,
		AdvanceAmount:   advance,
		ContactNumber:   g.randomPhone(),
	}
	if g.rng.Intn(3) == 0 {
		note := g.pick(proNotes)
		s.ProDetails = &note
	}
	return s
}

// Samples returns n samples.
func (g *DataGenerator) Samples(n int) []Sample {
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Sample())
	}
	return out
}

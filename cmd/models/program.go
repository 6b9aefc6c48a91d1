package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// TreatmentProgram is the practitioner-authored diet for one patient. Once
// locked it is the definitive source for the patient's displayed diet and no
// wizard mutation can change it.
type TreatmentProgram struct {
	gorm.Model
	PatientID uint       `gorm:"column:patient_id;not null;uniqueIndex" json:"patient_id"`
	Locked    bool       `gorm:"column:locked;default:false" json:"locked"`
	Meals     []MealSlot `gorm:"foreignKey:ProgramID;constraint:OnDelete:CASCADE" json:"meals"`
}

type MealSlot struct {
	gorm.Model
	ProgramID uint           `gorm:"column:program_id;not null" json:"program_id"`
	Position  int            `gorm:"column:position;not null" json:"position"`
	Period    string         `gorm:"column:period;size:20;not null" json:"period"`
	Protein   string         `gorm:"column:protein;size:100;not null" json:"protein"`
	Nutrients pq.StringArray `gorm:"column:nutrients;type:text[]" json:"nutrients"`
}

// DefaultMeals is the program every patient sees before the practitioner
// locks one of their own.
func DefaultMeals() []MealSlot {
	return []MealSlot{
		{Position: 0, Period: "Morning", Protein: "Eggs", Nutrients: pq.StringArray{"B12"}},
		{Position: 1, Period: "Noon", Protein: "Fish", Nutrients: pq.StringArray{"Magnesium"}},
		{Position: 2, Period: "Evening", Protein: "Chicken", Nutrients: pq.StringArray{}},
	}
}

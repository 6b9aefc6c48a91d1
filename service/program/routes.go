package program

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle("/patients/{id}/program", utils.AuthMiddleware(http.HandlerFunc(h.GetProgram))).Methods("GET")

	pr := router.PathPrefix("/practitioner/patients/{id}/program").Subrouter()
	pr.Handle("", utils.PractitionerOnly(http.HandlerFunc(h.GetDraft))).Methods("GET")
	pr.Handle("/protein", utils.PractitionerOnly(http.HandlerFunc(h.SwapProtein))).Methods("POST")
	pr.Handle("/nutrients", utils.PractitionerOnly(http.HandlerFunc(h.AddNutrient))).Methods("POST")
	pr.Handle("/nutrients/remove", utils.PractitionerOnly(http.HandlerFunc(h.RemoveNutrient))).Methods("POST")
	pr.Handle("/lock", utils.PractitionerOnly(http.HandlerFunc(h.LockProgram))).Methods("POST")
}

func pathPatientID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id), err
}

// GetProgram is the patient-facing view: the locked program when one exists,
// the default meals otherwise.
func (h *Handler) GetProgram(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathPatientID(r)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	var program models.TreatmentProgram
	result := h.db.Preload("Meals", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).Where("patient_id = ? AND locked = ?", patientID, true).First(&program)

	w.Header().Set("Content-Type", "application/json")
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			http.Error(w, "Error retrieving program", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"locked": false,
			"meals":  models.DefaultMeals(),
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"locked": true,
		"meals":  program.Meals,
	})
}

// draft loads the wizard's working program, seeding it from the defaults on
// first touch.
func (h *Handler) draft(tx *gorm.DB, patientID uint) (*models.TreatmentProgram, error) {
	var program models.TreatmentProgram
	result := tx.Preload("Meals", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).Where("patient_id = ?", patientID).First(&program)
	if result.Error == nil {
		return &program, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	var patient models.Patient
	if err := tx.First(&patient, patientID).Error; err != nil {
		return nil, err
	}

	program = models.TreatmentProgram{
		PatientID: patientID,
		Meals:     models.DefaultMeals(),
	}
	if err := tx.Create(&program).Error; err != nil {
		return nil, err
	}
	return &program, nil
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathPatientID(r)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	var program *models.TreatmentProgram
	err = h.db.Transaction(func(tx *gorm.DB) error {
		program, err = h.draft(tx, patientID)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error retrieving program", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(program)
}

type mealRequest struct {
	Position int    `json:"position"`
	Protein  string `json:"protein,omitempty"`
	Nutrient string `json:"nutrient,omitempty"`
}

// mutateMeal runs fn against one meal slot of the draft. Mutations on a
// locked program are rejected without touching it.
func (h *Handler) mutateMeal(w http.ResponseWriter, r *http.Request, fn func(meal *models.MealSlot, req mealRequest) error) {
	patientID, err := pathPatientID(r)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	var req mealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var program *models.TreatmentProgram
	err = h.db.Transaction(func(tx *gorm.DB) error {
		program, err = h.draft(tx, patientID)
		if err != nil {
			return err
		}
		if program.Locked {
			return errLocked
		}
		if req.Position < 0 || req.Position >= len(program.Meals) {
			return errBadSlot
		}
		meal := &program.Meals[req.Position]
		if err := fn(meal, req); err != nil {
			return err
		}
		return tx.Save(meal).Error
	})
	switch {
	case err == nil:
	case errors.Is(err, errLocked):
		http.Error(w, "Program is locked", http.StatusConflict)
		return
	case errors.Is(err, errBadSlot):
		http.Error(w, "Invalid meal position", http.StatusBadRequest)
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	default:
		http.Error(w, "Error updating program", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(program)
}

var (
	errLocked  = errors.New("program locked")
	errBadSlot = errors.New("invalid meal position")
)

func (h *Handler) SwapProtein(w http.ResponseWriter, r *http.Request) {
	h.mutateMeal(w, r, func(meal *models.MealSlot, req mealRequest) error {
		if req.Protein == "" {
			return errBadSlot
		}
		meal.Protein = req.Protein
		return nil
	})
}

// AddNutrient is idempotent: nutrient tags form a set.
func (h *Handler) AddNutrient(w http.ResponseWriter, r *http.Request) {
	h.mutateMeal(w, r, func(meal *models.MealSlot, req mealRequest) error {
		if req.Nutrient == "" {
			return errBadSlot
		}
		for _, n := range meal.Nutrients {
			if n == req.Nutrient {
				return nil
			}
		}
		meal.Nutrients = append(meal.Nutrients, req.Nutrient)
		return nil
	})
}

func (h *Handler) RemoveNutrient(w http.ResponseWriter, r *http.Request) {
	h.mutateMeal(w, r, func(meal *models.MealSlot, req mealRequest) error {
		for i, n := range meal.Nutrients {
			if n == req.Nutrient {
				meal.Nutrients = append(meal.Nutrients[:i], meal.Nutrients[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// LockProgram freezes the draft as the patient's definitive diet. One-way;
// locking an already locked program is a no-op.
func (h *Handler) LockProgram(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathPatientID(r)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	var program *models.TreatmentProgram
	err = h.db.Transaction(func(tx *gorm.DB) error {
		program, err = h.draft(tx, patientID)
		if err != nil {
			return err
		}
		if program.Locked {
			return nil
		}
		program.Locked = true
		return tx.Model(program).Update("locked", true).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Patient not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Error locking program", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Program locked",
		"program": program,
	})
}

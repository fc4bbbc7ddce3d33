package placement

import "github.com/pasantias/plaza-hub/internal/domain/shared"

// Reason - причина, по которой студент не допущен к месту.
type Reason string

const (
	ReasonUnderage        Reason = "underage"
	ReasonGender          Reason = "gender_mismatch"
	ReasonWorkshop        Reason = "workshop_mismatch"
	ReasonAlreadyBooked   Reason = "already_booked"
	ReasonActiveElsewhere Reason = "active_internship_elsewhere"
	ReasonDocuments       Reason = "documents_not_approved"
)

// Verdict - результат проверки допуска.
type Verdict struct {
	StudentID string
	SlotID    string
	Eligible  bool
	Reasons   []Reason
}

// AgeOK - возраст не меньше минимального, если минимум задан.
func AgeOK(st *Student, sl *Slot) bool {
	return sl.MinAge == nil || st.Age >= *sl.MinAge
}

// GenderOK - пол совпадает с разрешённым, либо место открыто для всех.
func GenderOK(st *Student, sl *Slot) bool {
	return sl.AllowedGender == shared.GenderAny || sl.AllowedGender == "" || st.Gender == sl.AllowedGender
}

// WorkshopOK - специальность студента совпадает со специальностью места.
func WorkshopOK(st *Student, sl *Slot) bool {
	return st.WorkshopID != "" && st.WorkshopID == sl.WorkshopID
}

// CheckEligibility объединяет фильтры через логическое И. Чистая функция:
// без ввода-вывода и побочных эффектов.
func CheckEligibility(st *Student, sl *Slot) Verdict {
	v := Verdict{StudentID: st.ID, SlotID: sl.ID}
	if !AgeOK(st, sl) {
		v.Reasons = append(v.Reasons, ReasonUnderage)
	}
	if !GenderOK(st, sl) {
		v.Reasons = append(v.Reasons, ReasonGender)
	}
	if !WorkshopOK(st, sl) {
		v.Reasons = append(v.Reasons, ReasonWorkshop)
	}
	v.Eligible = len(v.Reasons) == 0
	return v
}

// Reject добавляет причину отказа к вердикту.
func (v *Verdict) Reject(r Reason) {
	v.Reasons = append(v.Reasons, r)
	v.Eligible = false
}

// NewIneligibleError собирает ошибку по всем недопущенным студентам.
// Возвращает nil, если отказов нет.
func NewIneligibleError(slotID string, verdicts []Verdict) error {
	var ids []string
	reasons := make(map[string][]string)
	for _, v := range verdicts {
		if v.Eligible {
			continue
		}
		ids = append(ids, v.StudentID)
		for _, r := range v.Reasons {
			reasons[v.StudentID] = append(reasons[v.StudentID], string(r))
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &shared.IneligibleStudentsError{SlotID: slotID, IDs: ids, Reasons: reasons}
}

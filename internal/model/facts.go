package model

// Weekday keys for the hours schedule. Stored lowercase so JSON payloads
// from the LLM tiers and the deterministic extractor agree.
const (
	Monday    = "monday"
	Tuesday   = "tuesday"
	Wednesday = "wednesday"
	Thursday  = "thursday"
	Friday    = "friday"
	Saturday  = "saturday"
	Sunday    = "sunday"
)

// Weekdays returns the seven hour categories in calendar order.
func Weekdays() []string {
	return []string{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// Special is one promotional schedule entry (e.g. a recurring happy hour).
type Special struct {
	Description string `json:"description"`
	Schedule    string `json:"schedule,omitempty"`
}

// VenueFacts is the structured payload recovered by extraction. Hours maps
// weekday keys to a free-form hours string ("9am-5pm", "closed"); a missing
// key means the day could not be determined.
type VenueFacts struct {
	Hours    map[string]string `json:"hours"`
	Specials []Special         `json:"specials,omitempty"`
}

// HoursCovered returns how many of the seven weekday categories have a value.
func (f VenueFacts) HoursCovered() int {
	n := 0
	for _, day := range Weekdays() {
		if f.Hours[day] != "" {
			n++
		}
	}
	return n
}

package domain

// OverlayData is one projected countdown entry handed to overlay sources.
// Field names match what authored sources read (x.name, x.remainingTime, ...).
type OverlayData struct {
	Name             string      `json:"name"`
	RemainingSeconds int         `json:"remainingSeconds"`
	RemainingTime    string      `json:"remainingTime"`
	Reward           RewardTimer `json:"reward"`
}

// DefaultOverlayCode is served when an owner has not saved a source yet.
const DefaultOverlayCode = `function Timer() {
  const timers = useTimerData()

  return <div style={{ color: "white", fontFamily: "sans-serif" }}>
    {timers.map((x, i) => <div key={i} style={{ fontSize: 24 }}>{x.name} - {x.remainingTime}</div>)}
  </div>
}

render(<Timer />)`

// SourceOrDefault returns code, or the default template when code is blank.
func SourceOrDefault(code string) string {
	if code == "" {
		return DefaultOverlayCode
	}
	return code
}

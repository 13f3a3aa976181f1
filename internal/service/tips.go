package service

// tipMap maps canonical condition strings to short advisory tips.
var tipMap = map[string]string{
	"Rain":         "Bring an umbrella",
	"Drizzle":      "Bring an umbrella",
	"Snow":         "Wear warm clothes",
	"Clear":        "Perfect day for a walk",
	"Clouds":       "Might be gloomy, stay productive",
	"Thunderstorm": "Stay indoors and safe",
}

// defaultTip is returned for unmapped conditions.
const defaultTip = "Stay prepared and check the forecast!"

// Tip returns a short advisory string for a canonical condition. Pure
// function; unmapped conditions get the generic default.
func Tip(condition string) string {
	if tip, ok := tipMap[condition]; ok {
		return tip
	}
	return defaultTip
}

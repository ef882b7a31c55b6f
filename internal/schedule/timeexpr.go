package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const timePattern = `([01][0-9]|2[0-3]):([0-5][0-9])`

var (
	staticTime  = regexp.MustCompile(`^` + timePattern + `$`)
	dynamicTime = regexp.MustCompile(`^\{([A-Za-z0-9_]+)(\|([+-])(` + timePattern + `))?}$`)
)

const minutesPerDay = 24 * 60

// ResolveTime converts a time token to a canonical HH:MM string. A token is
// either a literal HH:MM, or a variable reference {name} / {name|±HH:MM}. An
// offset is added to the referenced time of day, wrapping on the 24-hour
// clock: 23:30 with offset +01:00 resolves to 00:30.
func ResolveTime(token string, env map[string]string) (string, error) {
	if !strings.HasPrefix(token, "{") {
		if !staticTime.MatchString(token) {
			return "", fmt.Errorf("%w: %q", ErrInvalidStaticTime, token)
		}
		return token, nil
	}

	m := dynamicTime.FindStringSubmatch(token)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDynamicTime, token)
	}
	value, ok := env[m[1]]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVariableNotFound, m[1])
	}
	if !staticTime.MatchString(value) {
		return "", fmt.Errorf("%w: variable %s does not hold a time: %q", ErrInvalidDynamicTime, m[1], value)
	}
	minutes := timeValue(value)
	if m[2] != "" {
		offset := timeValue(m[4])
		if m[3] == "-" {
			offset = -offset
		}
		minutes = ((minutes+offset)%minutesPerDay + minutesPerDay) % minutesPerDay
	}
	return formatTime(minutes), nil
}

// timeValue returns a canonical HH:MM string as minutes since midnight.
func timeValue(value string) int {
	hour, _ := strconv.Atoi(value[:2])
	minute, _ := strconv.Atoi(value[3:])
	return 60*hour + minute
}

func formatTime(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

package normalizer

import (
	"strings"

	"github.com/mileusna/useragent"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// Agent is the parsed form of a user-agent string.
type Agent struct {
	Browser        *string
	BrowserVersion *string
	OS             *string
	OSVersion      *string
	Device         string
	Brand          *string
	Model          *string
}

var brandPrefixes = []struct {
	prefix string
	brand  string
}{
	{"iphone", "Apple"},
	{"ipad", "Apple"},
	{"ipod", "Apple"},
	{"sm-", "Samsung"},
	{"samsung", "Samsung"},
	{"galaxy", "Samsung"},
	{"pixel", "Google"},
	{"nexus", "Google"},
	{"redmi", "Xiaomi"},
	{"mi ", "Xiaomi"},
	{"poco", "Xiaomi"},
	{"huawei", "Huawei"},
	{"honor", "Honor"},
	{"oneplus", "OnePlus"},
	{"moto", "Motorola"},
	{"nokia", "Nokia"},
	{"lg-", "LG"},
	{"sony", "Sony"},
	{"xperia", "Sony"},
	{"oppo", "Oppo"},
	{"cph", "Oppo"},
	{"vivo", "Vivo"},
	{"kindle", "Amazon"},
}

// ParseUserAgent extracts browser, OS and device details. Unknown or empty
// agents classify as desktop with every other field null.
func ParseUserAgent(s string) Agent {
	agent := Agent{Device: domain.DeviceDesktop}
	if strings.TrimSpace(s) == "" {
		return agent
	}

	ua := useragent.Parse(s)

	agent.Browser = nullable(ua.Name)
	agent.BrowserVersion = nullable(ua.Version)
	agent.OS = nullable(ua.OS)
	agent.OSVersion = nullable(ua.OSVersion)
	agent.Model = nullable(ua.Device)
	agent.Brand = nullable(brandOf(ua.Device, ua.OS))

	switch {
	case ua.Tablet:
		agent.Device = domain.DeviceTablet
	case ua.Mobile:
		agent.Device = domain.DeviceMobile
	}

	return agent
}

func brandOf(device, os string) string {
	d := strings.ToLower(device)
	for _, b := range brandPrefixes {
		if strings.HasPrefix(d, b.prefix) {
			return b.brand
		}
	}
	switch os {
	case "iOS", "macOS":
		return "Apple"
	}
	return ""
}

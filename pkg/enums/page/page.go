package page

import "strings"

// Page identifies which terminal screen is currently shown. Some push
// events are only patched in place when the matching screen is visible.
type Page struct {
	Name string
}

func (p Page) Code() string {
	return p.Name
}

func (p Page) Label() string {
	if len(p.Name) == 0 {
		return ""
	}
	return strings.ToUpper(p.Name[:1]) + p.Name[1:]
}

type Enum struct {
	Order    Page
	Kitchen  Page
	Pickup   Page
	Call     Page
	Settings Page
	Export   Page
}

var Pages = Enum{
	Order:    Page{Name: "order"},
	Kitchen:  Page{Name: "kitchen"},
	Pickup:   Page{Name: "pickup"},
	Call:     Page{Name: "call"},
	Settings: Page{Name: "settings"},
	Export:   Page{Name: "export"},
}

var All = []Page{
	Pages.Order,
	Pages.Kitchen,
	Pages.Pickup,
	Pages.Call,
	Pages.Settings,
	Pages.Export,
}

func Parse(code string) (Page, bool) {
	lower := strings.ToLower(strings.TrimSpace(code))
	for _, p := range All {
		if p.Name == lower {
			return p, true
		}
	}
	return Page{}, false
}

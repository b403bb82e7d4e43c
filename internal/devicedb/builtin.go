package devicedb

// Builtin returns the compiled-in catalog.
func Builtin() *DB {
	db := New()
	for i := range builtinEntries {
		db.Add(&builtinEntries[i])
	}
	return db
}

var builtinEntries = []Entry{
	{
		Name:    "Logitech G502 Proteus Spectrum",
		Driver:  "hidpp20",
		Matches: []Match{MustMatch("usb:046d:c332")},
		Config: DriverConfig{
			Profiles: 3,
			Buttons:  11,
			Leds:     2,
			Dpis:     5,
			DpiRange: &DpiRange{Min: 200, Max: 12000, Step: 50},
		},
	},
	{
		Name:    "Logitech G502 HERO",
		Driver:  "hidpp20",
		Matches: []Match{MustMatch("usb:046d:c08b")},
		Config: DriverConfig{
			Profiles: 5,
			Buttons:  11,
			Leds:     2,
			Dpis:     5,
			DpiRange: &DpiRange{Min: 100, Max: 25600, Step: 50},
		},
	},
	{
		Name:    "Logitech G403 Prodigy",
		Driver:  "hidpp20",
		Matches: []Match{MustMatch("usb:046d:c083")},
		Config: DriverConfig{
			Profiles: 1,
			Buttons:  6,
			Leds:     2,
			Dpis:     5,
			DpiRange: &DpiRange{Min: 200, Max: 12000, Step: 50},
		},
	},
	{
		Name:    "Logitech G305 Lightspeed",
		Driver:  "hidpp20",
		Matches: []Match{MustMatch("usb:046d:c53f")},
		Config: DriverConfig{
			Profiles: 1,
			Buttons:  6,
			Dpis:     5,
			DpiRange: &DpiRange{Min: 200, Max: 12000, Step: 50},
			Wireless: true,
		},
	},
	{
		Name:    "Logitech G500s",
		Driver:  "hidpp10",
		Matches: []Match{MustMatch("usb:046d:c24e")},
		Config: DriverConfig{
			Profiles: 1,
			Buttons:  10,
			Dpis:     1,
			DpiRange: &DpiRange{Min: 200, Max: 8200, Step: 50},
		},
	},
	{
		Name:    "Logitech M705 Marathon",
		Driver:  "hidpp10",
		Matches: []Match{MustMatch("usb:046d:101b"), MustMatch("usb:046d:406d")},
		Config: DriverConfig{
			Profiles: 1,
			Buttons:  7,
			Dpis:     1,
			Wireless: true,
		},
	},
}

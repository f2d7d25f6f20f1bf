package rules

// defaultRules is the built-in table. Order matters for Match.
var defaultRules = []CountryRule{
	// Central and West Africa
	{CountryCode: "+242", CountryName: "Republic of Congo", TotalLength: 9, MobilePrefixes: []string{"05", "06"}, Region: RegionFrancophone},
	{CountryCode: "+243", CountryName: "DR Congo", TotalLength: 9, MobilePrefixes: []string{"81", "82", "83", "84", "85", "89", "90", "97", "98", "99"}, Region: RegionFrancophone},
	{CountryCode: "+241", CountryName: "Gabon", TotalLength: 8, MobilePrefixes: []string{"06", "07"}, Region: RegionFrancophone},
	{CountryCode: "+237", CountryName: "Cameroon", TotalLength: 9, MobilePrefixes: []string{"6"}, Region: RegionFrancophone},
	{CountryCode: "+221", CountryName: "Senegal", TotalLength: 9, MobilePrefixes: []string{"70", "75", "76", "77", "78"}, Region: RegionFrancophone},
	{CountryCode: "+225", CountryName: "Ivory Coast", TotalLength: 10, MobilePrefixes: []string{"01", "05", "07"}, Region: RegionFrancophone},
	{CountryCode: "+223", CountryName: "Mali", TotalLength: 8, MobilePrefixes: []string{"6", "7", "8", "9"}, Region: RegionFrancophone},
	{CountryCode: "+226", CountryName: "Burkina Faso", TotalLength: 8, MobilePrefixes: []string{"5", "6", "7"}, Region: RegionFrancophone},
	{CountryCode: "+227", CountryName: "Niger", TotalLength: 8, MobilePrefixes: []string{"8", "9"}, Region: RegionFrancophone},
	{CountryCode: "+228", CountryName: "Togo", TotalLength: 8, MobilePrefixes: []string{"7", "9"}, Region: RegionFrancophone},
	{CountryCode: "+229", CountryName: "Benin", TotalLength: 10, MobilePrefixes: []string{"01"}, Region: RegionFrancophone},
	{CountryCode: "+224", CountryName: "Guinea", TotalLength: 9, MobilePrefixes: []string{"6"}, Region: RegionFrancophone},

	// North Africa
	{CountryCode: "+212", CountryName: "Morocco", TotalLength: 9, MobilePrefixes: []string{"6", "7"}, Region: RegionFrancophone},
	{CountryCode: "+213", CountryName: "Algeria", TotalLength: 9, MobilePrefixes: []string{"5", "6", "7"}, Region: RegionFrancophone},
	{CountryCode: "+216", CountryName: "Tunisia", TotalLength: 8, MobilePrefixes: []string{"2", "4", "5", "9"}, Region: RegionFrancophone},

	// Europe
	{CountryCode: "+33", CountryName: "France", TotalLength: 9, MobilePrefixes: []string{"6", "7"}, Region: RegionFrancophone},
	{CountryCode: "+32", CountryName: "Belgium", TotalLength: 9, MobilePrefixes: []string{"4"}, Region: RegionFrancophone},
	{CountryCode: "+41", CountryName: "Switzerland", TotalLength: 9, MobilePrefixes: []string{"7"}, Region: RegionOther},
	{CountryCode: "+44", CountryName: "United Kingdom", TotalLength: 10, MobilePrefixes: []string{"7"}, Region: RegionAnglophone},

	// Anglophone Africa
	{CountryCode: "+234", CountryName: "Nigeria", TotalLength: 10, MobilePrefixes: []string{"70", "80", "81", "90", "91"}, Region: RegionAnglophone},
	{CountryCode: "+233", CountryName: "Ghana", TotalLength: 9, MobilePrefixes: []string{"20", "23", "24", "25", "26", "27", "28", "50", "53", "54", "55", "56", "57", "59"}, Region: RegionAnglophone},
	{CountryCode: "+254", CountryName: "Kenya", TotalLength: 9, MobilePrefixes: []string{"1", "7"}, Region: RegionAnglophone},
	{CountryCode: "+250", CountryName: "Rwanda", TotalLength: 9, MobilePrefixes: []string{"72", "73", "78", "79"}, Region: RegionAnglophone},
	{CountryCode: "+27", CountryName: "South Africa", TotalLength: 9, MobilePrefixes: []string{"6", "7", "8"}, Region: RegionAnglophone},

	// Rest of world
	{CountryCode: "+1", CountryName: "United States/Canada", TotalLength: 10, MobilePrefixes: []string{"2", "3", "4", "5", "6", "7", "8", "9"}, Region: RegionAnglophone},
	{CountryCode: "+91", CountryName: "India", TotalLength: 10, MobilePrefixes: []string{"6", "7", "8", "9"}, Region: RegionOther},
	{CountryCode: "+971", CountryName: "United Arab Emirates", TotalLength: 9, MobilePrefixes: []string{"50", "52", "54", "55", "56", "58"}, Region: RegionOther},
}

// Default returns the built-in rule table
func Default() *Table {
	t, err := NewTable(defaultRules)
	if err != nil {
		panic("rules: built-in table is invalid: " + err.Error())
	}
	return t
}

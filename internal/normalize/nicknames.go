package normalize

import "sort"

// nicknameToCanonical maps common nicknames to their formal first name.
// The table is fixed on purpose: matcher behavior must not drift with
// external data, and two records normalized under different table versions
// would produce different dedupe groupings.
var nicknameToCanonical = map[string]string{
	"ABBY":    "ABIGAIL",
	"AL":      "ALBERT",
	"ALEX":    "ALEXANDER",
	"ANDY":    "ANDREW",
	"ART":     "ARTHUR",
	"BARB":    "BARBARA",
	"BECKY":   "REBECCA",
	"BEN":     "BENJAMIN",
	"BETH":    "ELIZABETH",
	"BETSY":   "ELIZABETH",
	"BETTY":   "ELIZABETH",
	"BILL":    "WILLIAM",
	"BILLY":   "WILLIAM",
	"BOB":     "ROBERT",
	"BOBBY":   "ROBERT",
	"CATHY":   "CATHERINE",
	"CHARLIE": "CHARLES",
	"CHRIS":   "CHRISTOPHER",
	"CHUCK":   "CHARLES",
	"CINDY":   "CYNTHIA",
	"DAN":     "DANIEL",
	"DANNY":   "DANIEL",
	"DAVE":    "DAVID",
	"DEB":     "DEBORAH",
	"DEBBIE":  "DEBORAH",
	"DICK":    "RICHARD",
	"DON":     "DONALD",
	"DOUG":    "DOUGLAS",
	"ED":      "EDWARD",
	"EDDIE":   "EDWARD",
	"FRANK":   "FRANCIS",
	"FRED":    "FREDERICK",
	"GREG":    "GREGORY",
	"HANK":    "HENRY",
	"HARRY":   "HAROLD",
	"JACK":    "JOHN",
	"JAKE":    "JACOB",
	"JEFF":    "JEFFREY",
	"JEN":     "JENNIFER",
	"JENNY":   "JENNIFER",
	"JERRY":   "GERALD",
	"JIM":     "JAMES",
	"JIMMY":   "JAMES",
	"JOE":     "JOSEPH",
	"JOEY":    "JOSEPH",
	"JOHNNY":  "JOHN",
	"JON":     "JONATHAN",
	"KATE":    "KATHERINE",
	"KATHY":   "KATHERINE",
	"KATIE":   "KATHERINE",
	"KEN":     "KENNETH",
	"KIM":     "KIMBERLY",
	"LARRY":   "LAWRENCE",
	"LIZ":     "ELIZABETH",
	"MAGGIE":  "MARGARET",
	"MANDY":   "AMANDA",
	"MARGE":   "MARGARET",
	"MATT":    "MATTHEW",
	"MEG":     "MARGARET",
	"MIKE":    "MICHAEL",
	"NATE":    "NATHANIEL",
	"NICK":    "NICHOLAS",
	"PAM":     "PAMELA",
	"PAT":     "PATRICIA",
	"PATTY":   "PATRICIA",
	"PEGGY":   "MARGARET",
	"PETE":    "PETER",
	"RAY":     "RAYMOND",
	"RICH":    "RICHARD",
	"RICK":    "RICHARD",
	"ROB":     "ROBERT",
	"RON":     "RONALD",
	"RUSS":    "RUSSELL",
	"SAM":     "SAMUEL",
	"SANDY":   "SANDRA",
	"STEVE":   "STEVEN",
	"SUE":     "SUSAN",
	"SUSIE":   "SUSAN",
	"TED":     "THEODORE",
	"TERRY":   "TERRENCE",
	"TIM":     "TIMOTHY",
	"TOM":     "THOMAS",
	"TOMMY":   "THOMAS",
	"TONY":    "ANTHONY",
	"VICKY":   "VICTORIA",
	"WALT":    "WALTER",
	"WILL":    "WILLIAM",
}

// canonicalToNicknames is derived once from the table above so expansion
// works in both directions.
var canonicalToNicknames = func() map[string][]string {
	m := make(map[string][]string)
	for nick, canonical := range nicknameToCanonical {
		m[canonical] = append(m[canonical], nick)
	}
	for _, nicks := range m {
		sort.Strings(nicks)
	}
	return m
}()

// Canonical returns the formal form of a first name: the nickname-table
// target when the name is a registered nickname, otherwise the name itself.
func Canonical(first string) string {
	if canonical, ok := nicknameToCanonical[first]; ok {
		return canonical
	}
	return first
}

// Variants expands a normalized first name into its full comparison set:
// the name itself, its canonical form, and every registered nickname of
// that canonical form. The result is sorted and deduplicated so variant
// iteration order is deterministic. An empty name yields nil.
func Variants(first string) []string {
	if first == "" {
		return nil
	}
	seen := map[string]bool{first: true}
	canonical := Canonical(first)
	seen[canonical] = true
	for _, nick := range canonicalToNicknames[canonical] {
		seen[nick] = true
	}
	variants := make([]string, 0, len(seen))
	for v := range seen {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return variants
}

package alias

// Pools holds the first and last name inventories the generator draws from.
type Pools struct {
	First []string
	Last  []string
}

// Empty reports whether either inventory is missing.
func (p Pools) Empty() bool {
	return len(p.First) == 0 || len(p.Last) == 0
}

// DefaultPools returns the built-in name inventories used when no name pool
// file is configured.
func DefaultPools() Pools {
	return Pools{
		First: []string{
			"james", "maria", "oliver", "sofia", "lucas", "emma", "noah", "mia",
			"liam", "ava", "ethan", "isabella", "mason", "amelia", "logan", "harper",
			"jacob", "evelyn", "daniel", "abigail", "henry", "ella", "michael", "scarlett",
			"alexander", "grace", "sebastian", "chloe", "jack", "victoria", "owen", "riley",
			"gabriel", "aria", "carter", "lily", "julian", "hannah", "leo", "zoe",
		},
		Last: []string{
			"smith", "johnson", "williams", "brown", "jones", "garcia", "miller", "davis",
			"rodriguez", "martinez", "hernandez", "lopez", "gonzalez", "wilson", "anderson", "thomas",
			"taylor", "moore", "jackson", "martin", "lee", "perez", "thompson", "white",
			"harris", "sanchez", "clark", "ramirez", "lewis", "robinson", "walker", "young",
			"allen", "king", "wright", "scott", "torres", "nguyen", "hill", "flores",
		},
	}
}

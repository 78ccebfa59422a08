package monster

// Scaling contains difficulty formulas for party size.

// StandardPartySize is the party size monster stats are tuned for.
const StandardPartySize = 4

// ScaleHP calculates max HP for a party of the given size.
// Formula: base_hp * (1 + (size - 4) * 0.25), never below 1 member's worth.
func ScaleHP(baseHP, partySize int) int {
	if partySize < 1 {
		partySize = 1
	}
	multiplier := 1.0 + float64(partySize-StandardPartySize)*0.25
	hp := int(float64(baseHP) * multiplier)
	return max(1, hp)
}

// ScaleForParty returns a copy of the template scaled to the party size.
func (t Template) ScaleForParty(partySize int) Template {
	t.MaxHP = ScaleHP(t.MaxHP, partySize)
	return t
}

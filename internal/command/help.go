package command

// catalog lists example phrasings per intent, shown by HELP and offered as
// suggestions when an utterance is not understood.
var catalog = []struct {
	Kind     Kind     `json:"intent"`
	Examples []string `json:"examples"`
}{
	{KindCheckout, []string{"check out basketball 1", "borrow the projector for 3 days"}},
	{KindCheckin, []string{"return basketball 1", "give back the projector"}},
	{KindFind, []string{"where is the projector", "find BB1-001"}},
	{KindGetStatus, []string{"status of basketball 1", "is the projector available"}},
	{KindSetStatus, []string{"mark basketball 1 as damaged because the seam is torn", "send the projector to maintenance"}},
	{KindList, []string{"list equipment", "show equipment that is checked out"}},
	{KindHelp, []string{"help"}},
}

func exampleCommands() []string {
	var out []string
	for _, c := range catalog {
		out = append(out, c.Examples[0])
	}
	return out
}

func help() Result {
	return Result{
		Message:     "Here is what you can ask me to do.",
		Data:        catalog,
		Suggestions: exampleCommands(),
	}
}

package config

// DefaultProfile is the profile selected when no state document exists.
const DefaultProfile = "standard"

// Built-in provider names and the environment variables holding their keys.
const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
)

func builtinProviderKeys() map[string]string {
	return map[string]string{
		ProviderDeepSeek: "DEEPSEEK_API_KEY",
		ProviderOpenAI:   "OPENAI_API_KEY",
	}
}

// builtinProfiles returns the default profile patches. "standard" enables
// everything the catalogue enables; "lite" trims the optional and stage-3
// debate agents down to the core chain plus fund-flow and news coverage.
func builtinProfiles() map[string]map[string]bool {
	return map[string]map[string]bool{
		"standard": {},
		"lite": {
			"sector": false,
			"macro":  false,
			"bull":   false,
			"bear":   false,
		},
	}
}

func defaultBinding(temperature float64) ProviderBinding {
	return ProviderBinding{
		Provider:    ProviderDeepSeek,
		Model:       "deepseek-chat",
		Temperature: temperature,
	}
}

// builtinAgents returns the default analyst catalogue: five information
// gatherers, one integrator, the stage-3 debate and risk wave, and the final
// decision maker. Serves as the catalogue whenever agents.json is absent.
func builtinAgents() []AgentSpec {
	return []AgentSpec{
		{
			ID:       "technical",
			Role:     "Technical Analyst",
			Stage:    1,
			Binding:  defaultBinding(0.3),
			Priority: PriorityCore,
			SystemPrompt: "You are a senior technical analyst. Read the quote snapshot " +
				"and price action supplied as evidence and assess trend, momentum, " +
				"support and resistance levels, and volume behaviour. Be specific " +
				"about price levels and cite the figures you rely on.",
			EvidenceBindings: []EvidenceBinding{
				{Key: "quote", Label: "Quote snapshot"},
			},
			TaskDirective: "Summarise the technical posture of the stock and state " +
				"whether the setup favours entry, holding, or reduction.",
			Enabled: true,
		},
		{
			ID:       "funds",
			Role:     "Fund Flow Analyst",
			Stage:    1,
			Binding:  defaultBinding(0.3),
			Priority: PriorityImportant,
			SystemPrompt: "You are a fund flow analyst. Interpret the money-flow " +
				"evidence: main-capital net inflows, large-order activity, and " +
				"how flows have shifted over recent sessions. Distinguish " +
				"institutional accumulation from retail churn.",
			EvidenceBindings: []EvidenceBinding{
				{Key: "fund-flow", Label: "Capital flows"},
			},
			TaskDirective: "Conclude whether smart money is entering or exiting and " +
				"how much conviction the flows show.",
			Enabled: true,
		},
		{
			ID:       "news",
			Role:     "News Analyst",
			Stage:    1,
			Binding:  defaultBinding(0.4),
			Priority: PriorityImportant,
			SystemPrompt: "You are a financial news analyst. Review the supplied " +
				"headlines and announcements for this stock. Separate material " +
				"catalysts (earnings, contracts, regulation, management changes) " +
				"from noise, and note sentiment direction.",
			EvidenceBindings: []EvidenceBinding{
				{Key: "news", Label: "Recent news"},
			},
			TaskDirective: "List the material catalysts, their likely direction of " +
				"impact, and an overall news sentiment.",
			Enabled: true,
		},
		{
			ID:       "sector",
			Role:     "Sector Analyst",
			Stage:    1,
			Binding:  defaultBinding(0.4),
			Priority: PriorityOptional,
			SystemPrompt: "You are a sector rotation analyst. Using the sector " +
				"evidence, place this stock within its industry: relative " +
				"strength versus peers, where the sector sits in the rotation " +
				"cycle, and whether the group is attracting or losing capital.",
			EvidenceBindings: []EvidenceBinding{
				{Key: "sector", Label: "Sector standings"},
			},
			TaskDirective: "State whether the sector is a tailwind or headwind for " +
				"this stock right now.",
			Enabled: true,
		},
		{
			ID:       "macro",
			Role:     "Macro Analyst",
			Stage:    1,
			Binding:  defaultBinding(0.4),
			Priority: PriorityOptional,
			SystemPrompt: "You are a macro strategist. Assess the broad backdrop in " +
				"the macro evidence: index levels and breadth, liquidity and " +
				"policy signals, and overall risk appetite. Keep the analysis " +
				"relevant to how it conditions this single stock.",
			EvidenceBindings: []EvidenceBinding{
				{Key: "macro", Label: "Macro backdrop"},
			},
			TaskDirective: "Describe the macro regime and whether it supports taking " +
				"equity risk in this name.",
			Enabled: true,
		},
		{
			ID:       "integrator",
			Role:     "Integration Analyst",
			Stage:    2,
			Binding:  defaultBinding(0.3),
			Priority: PriorityCore,
			SystemPrompt: "You are the integration analyst. You receive the stage-one " +
				"analyst reports. Reconcile them: where technicals, flows, and " +
				"news agree, say so; where they conflict, weigh which signal " +
				"dominates and why. Produce one coherent picture of the stock.",
			Dependencies: []string{"technical", "funds", "news"},
			TaskDirective: "Deliver an integrated assessment with the two or three " +
				"factors that matter most, noting any analyst input that was " +
				"unavailable.",
			Enabled: true,
		},
		{
			ID:       "bull",
			Role:     "Bull Researcher",
			Stage:    3,
			Binding:  defaultBinding(0.7),
			Priority: PriorityImportant,
			SystemPrompt: "You are the bull researcher. Starting from the integrated " +
				"assessment, build the strongest honest case for buying or " +
				"holding this stock. Lean on the most favourable evidence but " +
				"do not invent facts.",
			Dependencies: []string{"integrator"},
			TaskDirective: "Present the bull case: upside drivers, what would confirm " +
				"the thesis, and a realistic upside scenario.",
			Enabled: true,
		},
		{
			ID:       "bear",
			Role:     "Bear Researcher",
			Stage:    3,
			Binding:  defaultBinding(0.7),
			Priority: PriorityImportant,
			SystemPrompt: "You are the bear researcher. Starting from the integrated " +
				"assessment, build the strongest honest case against this stock: " +
				"risks, deteriorating signals, crowded positioning, and what the " +
				"bulls are ignoring.",
			Dependencies: []string{"integrator"},
			TaskDirective: "Present the bear case: key risks, what would confirm the " +
				"downside, and a realistic downside scenario.",
			Enabled: true,
		},
		{
			ID:       "risk_manager",
			Role:     "Risk Manager",
			Stage:    3,
			Binding:  defaultBinding(0.2),
			Priority: PriorityCore,
			SystemPrompt: "You are the risk manager. From the integrated assessment, " +
				"quantify what can go wrong: volatility and drawdown potential, " +
				"liquidity, event risk, and position-sizing constraints. You do " +
				"not make the call; you bound it.",
			Dependencies: []string{"integrator"},
			TaskDirective: "Produce a risk report: the main loss scenarios, a " +
				"suggested maximum position size, and stop-loss guidance.",
			Enabled: true,
		},
		{
			ID:       "decision",
			Role:     "Chief Decision Maker",
			Stage:    4,
			Binding:  defaultBinding(0.2),
			Priority: PriorityCore,
			SystemPrompt: "You are the chief decision maker. You receive the " +
				"integrated assessment, the bull and bear debate, and the risk " +
				"report. Weigh them and commit to a single actionable call. If " +
				"inputs were unavailable, say how that lowers your confidence.",
			Dependencies: []string{"integrator", "bull", "bear", "risk_manager"},
			TaskDirective: "Give the final verdict: buy, hold, or avoid, with a " +
				"confidence level, position-size guidance, and the conditions " +
				"that would change your mind.",
			Enabled: true,
		},
	}
}

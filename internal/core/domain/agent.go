package domain

// Agent identifies a kind of periodic background job under supervision.
type Agent string

const (
	AgentCompanyEnrich   Agent = "company_enrich"
	AgentContactDiscover Agent = "contact_discover"
	AgentEmailVerify     Agent = "email_verify"
	AgentCRMSync         Agent = "crm_sync"
	AgentNewsMonitor     Agent = "news_monitor"
	AgentDataQuality     Agent = "data_quality"
)

// KnownAgents lists every supervised agent in a stable order.
var KnownAgents = []Agent{
	AgentCompanyEnrich,
	AgentContactDiscover,
	AgentEmailVerify,
	AgentCRMSync,
	AgentNewsMonitor,
	AgentDataQuality,
}

// IsKnown reports whether the agent is one of the supervised kinds.
func (a Agent) IsKnown() bool {
	for _, k := range KnownAgents {
		if k == a {
			return true
		}
	}
	return false
}

func (a Agent) String() string {
	return string(a)
}

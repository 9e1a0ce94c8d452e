package agents

import (
	"github.com/orquestra-labs/orquestra/pkg/llm"
	"github.com/orquestra-labs/orquestra/pkg/registry"
)

const assessoriaPrompt = `Você é um agente de assessoria. Sua função é fornecer uma orientação geral e amigável
com base na solicitação do usuário. Não forneça conselhos financeiros específicos.
Responda de forma clara e objetiva.`

const financeiroPrompt = `Você é um agente de consulta financeira. Sua função é responder a perguntas sobre
investimentos, mercados e finanças com base em seu conhecimento.
Seja direto e informativo.`

const agendamentoPrompt = `Você é um agente de agendamento. Sua função é ajudar o usuário a agendar,
remarcar ou cancelar compromissos e reuniões. Confirme sempre data, horário e
participantes antes de concluir.`

// NewAssessoria creates the general-advice agent.
func NewAssessoria(provider llm.Provider, cfg Config) registry.Agent {
	return newLLMAgent("assessoria", assessoriaPrompt, provider, cfg)
}

// NewFinanceiro creates the finance-query agent.
func NewFinanceiro(provider llm.Provider, cfg Config) registry.Agent {
	return newLLMAgent("consulta_financeira", financeiroPrompt, provider, cfg)
}

// NewAgendamento creates the scheduling agent.
func NewAgendamento(provider llm.Provider, cfg Config) registry.Agent {
	return newLLMAgent("agendamento", agendamentoPrompt, provider, cfg)
}

// All builds the full agent set in canonical order.
func All(provider llm.Provider, cfg Config) []registry.Agent {
	return []registry.Agent{
		NewAssessoria(provider, cfg),
		NewFinanceiro(provider, cfg),
		NewAgendamento(provider, cfg),
	}
}

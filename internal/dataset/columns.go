// Package dataset builds the recruiting summary table: it fetches the
// prospects, applicants and job-postings documents, flattens each into a
// table, joins them and projects the fixed summary columns.
package dataset

// Logical dataset names.
const (
	Prospects  = "prospects"
	Applicants = "applicants"
	Jobs       = "vagas"
)

// Column names shared between the flatteners and the summary projection.
const (
	ColCandidateCode  = "codigo"
	ColName           = "nome"
	ColStatus         = "situacao_candidado"
	ColAppliedAt      = "data_candidatura"
	ColRecruiter      = "recrutador"
	ColJobCode        = "codigo_vaga"
	ColJobTitle       = "titulo_vaga"
	ColModality       = "modalidade"
	ColApplicantCode  = "codigo_profissional"
	ColEmail          = "email"
	ColPhone          = "telefone"
	ColProfTitle      = "titulo_profissional"
	ColPracticeArea   = "area_atuacao"
	ColAcademicLevel  = "nivel_academico"
	ColEnglishLevel   = "nivel_ingles"
	ColSpanishLevel   = "nivel_espanhol"
	ColResumeText     = "cv_pt"
	ColPostingID      = "id_vaga"
	ColMainActivities = "perfil_vaga__principais_atividades"
	ColCompetencies   = "perfil_vaga__competencia_tecnicas_e_comportamentais"
	ColOtherNotes     = "perfil_vaga__demais_observacoes"
	ColTravel         = "perfil_vaga__viagens_requeridas"
	ColEquipment      = "perfil_vaga__equipamentos_necessarios"
)

// SectionSep joins a job-posting section name and field name.
const SectionSep = "__"

// SummaryColumns is the fixed projection of the joined table, in order.
// The flattener schemas must declare every one of these.
var SummaryColumns = []string{
	ColName,
	ColCandidateCode,
	ColStatus,
	ColAppliedAt,
	ColRecruiter,
	ColJobCode,
	ColJobTitle,
	ColEmail,
	ColResumeText,
	ColPostingID,
	ColMainActivities,
	ColCompetencies,
	ColOtherNotes,
	ColTravel,
	ColEquipment,
}

// JobDescriptionColumns are the summary columns describing the posting,
// concatenated into the job description used for scoring.
var JobDescriptionColumns = []string{
	ColMainActivities,
	ColCompetencies,
	ColOtherNotes,
	ColTravel,
	ColEquipment,
}

// prospectColumns are always declared on the prospects frame. The name
// column is not: when no prospect carries one, the applicant name flows
// through the join instead of being shadowed by an all-null column.
var prospectColumns = []string{
	ColCandidateCode,
	ColStatus,
	ColAppliedAt,
	ColRecruiter,
	ColJobCode,
	ColJobTitle,
	ColModality,
}

var applicantColumns = []string{
	ColApplicantCode,
	ColName,
	ColEmail,
	ColPhone,
	ColProfTitle,
	ColPracticeArea,
	ColAcademicLevel,
	ColEnglishLevel,
	ColSpanishLevel,
	ColResumeText,
}

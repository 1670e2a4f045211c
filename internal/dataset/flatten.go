package dataset

import (
	"fmt"
	"io"

	"github.com/fmuoria/resume-screener/internal/table"
	"github.com/fmuoria/resume-screener/internal/tree"
)

// FlattenProspects turns the prospects document (job code -> {titulo,
// modalidade, prospects: [...]}) into one row per prospect. Each row keeps
// every key of the prospect record and inherits the parent job's code,
// title and modality. Jobs without prospects contribute nothing.
func FlattenProspects(r io.Reader) (*table.Frame, error) {
	f := table.New(prospectColumns...)

	err := tree.DecodeEntries(r, func(jobCode string, job tree.Value) error {
		title := fieldOr(job, "titulo", tree.Str(""))
		modality := fieldOr(job, "modalidade", tree.Str(""))

		for i, p := range job.Field("prospects").Elems() {
			if !p.IsObject() {
				return fmt.Errorf("job %s: prospect %d is a %s, not an object", jobCode, i, p.Kind())
			}
			members := make([]tree.Member, 0, len(p.Members())+3)
			for _, m := range p.Members() {
				switch m.Key {
				case ColJobCode, ColJobTitle, ColModality:
					continue
				}
				members = append(members, m)
			}
			members = append(members,
				tree.M(ColJobCode, tree.Str(jobCode)),
				tree.M(ColJobTitle, title),
				tree.M(ColModality, modality),
			)
			f.Append(members...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flatten prospects: %w", err)
	}
	return f, nil
}

// FlattenApplicants turns the applicants document (candidate code ->
// nested profile) into one row per candidate with a fixed field subset.
// Missing groups or fields become null; the résumé text is carried verbatim.
func FlattenApplicants(r io.Reader) (*table.Frame, error) {
	f := table.New(applicantColumns...)

	err := tree.DecodeEntries(r, func(code string, a tree.Value) error {
		basic := a.Field("infos_basicas")
		prof := a.Field("informacoes_profissionais")
		edu := a.Field("formacao_e_idiomas")

		f.Append(
			tree.M(ColApplicantCode, tree.Str(code)),
			tree.M(ColName, basic.Field("nome")),
			tree.M(ColEmail, basic.Field("email")),
			tree.M(ColPhone, basic.Field("telefone")),
			tree.M(ColProfTitle, prof.Field("titulo_profissional")),
			tree.M(ColPracticeArea, prof.Field("area_atuacao")),
			tree.M(ColAcademicLevel, edu.Field("nivel_academico")),
			tree.M(ColEnglishLevel, edu.Field("nivel_ingles")),
			tree.M(ColSpanishLevel, edu.Field("nivel_espanhol")),
			tree.M(ColResumeText, fieldOr(a, "cv_pt", tree.Str(""))),
		)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flatten applicants: %w", err)
	}
	return f, nil
}

// FlattenJobs turns the job-postings document (job code -> sectioned
// record) into one row per posting. Every leaf under a section becomes a
// <section>__<field> column; top-level scalars and arrays keep their name.
// known declares columns that must exist even if no posting carries them.
func FlattenJobs(r io.Reader, known ...string) (*table.Frame, error) {
	f := table.New(ColPostingID)
	for _, c := range known {
		f.AddColumn(c)
	}

	err := tree.DecodeEntries(r, func(id string, job tree.Value) error {
		members := []tree.Member{tree.M(ColPostingID, tree.Str(id))}
		for _, section := range job.Members() {
			if section.Value.IsObject() && len(section.Value.Members()) == 0 {
				continue
			}
			for _, leaf := range tree.Flatten(section.Value, SectionSep) {
				name := section.Key
				if leaf.Key != "" {
					name += SectionSep + leaf.Key
				}
				members = append(members, tree.M(name, leaf.Value))
			}
		}
		f.Append(members...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flatten jobs: %w", err)
	}
	return f, nil
}

func fieldOr(v tree.Value, key string, def tree.Value) tree.Value {
	if f, ok := v.Get(key); ok {
		return f
	}
	return def
}

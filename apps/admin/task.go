package main

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
	"github.com/trezcool/markit/core/marking"
	"github.com/trezcool/markit/core/task"
	mirrorsvc "github.com/trezcool/markit/services/mirror"
)

func (cli *commandLine) importTask(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading manifest")
	}
	var m task.Manifest
	if err = yaml.Unmarshal(content, &m); err != nil {
		return errors.Wrap(err, "parsing manifest")
	}

	t, err := cli.taskSvc.Import(context.Background(), m)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "task %q imported (id %d, %d questions)\n", t.Name, t.ID, len(m.Questions))
	return nil
}

func (cli *commandLine) listBooks(taskID int64, search, sort string, page, size int) error {
	ctx := context.Background()
	t, err := cli.taskSvc.GetDetail(ctx, taskID)
	if err != nil {
		return err
	}
	books, err := cli.markingSvc.ListBookSummaries(ctx, t.ID)
	if err != nil {
		return err
	}

	excluded := marking.ExcludedQuestions(t)
	p := marking.NewBookPaginator(books, excluded, size)
	if key := core.CleanString(search); key != "" {
		p.Search(key)
	}
	if sort = strings.TrimSpace(sort); sort != "" {
		if !p.SetSort(strings.TrimPrefix(sort, "-"), strings.HasPrefix(sort, "-")) {
			return errors.Errorf("unknown sort field %q", sort)
		}
	}
	if page > 1 && !p.GoTo(page) {
		return errors.Errorf("invalid page %d", page)
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDENT\tMARKINGS\tTOTAL")
	for _, b := range p.PageItems() {
		student := "-"
		if b.Student != nil {
			student = b.Student.Name
		}
		total := "-"
		if sum, ok := b.Total(excluded); ok {
			total = marking.FormatMarks(sum)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", b.ID, student, len(b.Markings), total)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	meta := p.Meta()
	fmt.Fprintf(cli.out, "page %d/%d (%d books)\n", meta.Page, meta.TotalPages, meta.Total)
	return nil
}

// mirrorTask copies every file of the books of a task to the mirror.
func (cli *commandLine) mirrorTask(taskID int64) error {
	ctx := context.Background()
	books, err := cli.answerSvc.ListBooks(ctx, taskID)
	if err != nil {
		return err
	}

	var pages []answer.Page
	for _, b := range books {
		bookPages, err := cli.answerSvc.GetPages(ctx, b.ID)
		if err != nil {
			return err
		}
		pages = append(pages, bookPages...)
	}

	jobs := mirrorsvc.Jobs(pages)
	for _, job := range jobs {
		if err = cli.mirror.Mirror(ctx, job); err != nil {
			return errors.Wrapf(err, "mirroring %s", answer.RemotePath(job.BookID, job.FilePath))
		}
	}
	fmt.Fprintf(cli.out, "%d files mirrored\n", len(jobs))
	return nil
}

// sendReport emails the marks report of a task as a PDF attachment.
func (cli *commandLine) sendReport(taskID int64, to string) error {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return errors.Wrap(err, "parsing recipient")
	}

	ctx := context.Background()
	t, err := cli.taskSvc.GetDetail(ctx, taskID)
	if err != nil {
		return err
	}
	sheet, err := cli.markingSvc.Sheet(ctx, t.ID)
	if err != nil {
		return err
	}
	summary, err := cli.markingSvc.Summary(ctx, t.ID)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = cli.reporter.MarksReport(&buf, t, sheet, summary); err != nil {
		return errors.Wrap(err, "rendering marks report")
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{*addr},
		Subject:      fmt.Sprintf("Marks report: %s", t.Name),
		TemplateName: "task_report",
		TemplateData: map[string]interface{}{
			"TaskName": t.Name,
			"NumBooks": len(sheet.Rows),
		},
	}
	if err = msg.Attach(&buf, fmt.Sprintf("task-%d-report.pdf", t.ID), "application/pdf"); err != nil {
		return err
	}
	cli.mailSvc.SendMessages(msg)
	fmt.Fprintf(cli.out, "report of %q sent to %s\n", t.Name, addr.Address)
	return nil
}

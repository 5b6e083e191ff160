package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"codesync/internal/client"
	"codesync/internal/domain"
	"codesync/internal/event"
	"codesync/internal/grading"
)

var (
	systemColor = color.New(color.FgYellow)
	chatColor   = color.New(color.FgCyan)
	noteColor   = color.New(color.FgGreen)
	codeColor   = color.New(color.FgMagenta)
	timerColor  = color.New(color.FgWhite, color.Bold)
	okColor     = color.New(color.FgGreen, color.Bold)
	badColor    = color.New(color.FgRed, color.Bold)
)

// runSession renders bus events to the terminal and feeds line commands
// into the session until :quit or EOF.
func runSession(ctx context.Context, cl *client.Client, role domain.Role) error {
	renderEvents(cl, role)

	fmt.Println("joined; plain text chats, :help lists commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, cl, role, line)
			if err != nil {
				badColor.Fprintln(os.Stderr, err)
			}
			if quit {
				return nil
			}
		}
	}
}

func renderEvents(cl *client.Client, role domain.Role) {
	bus := cl.Bus()

	bus.Subscribe(domain.EventNameChatUpdated, func(ctx context.Context, e event.Event) error {
		m := e.(domain.EventChatUpdated).Latest
		if m.Kind == domain.MessageSystem {
			systemColor.Printf("[system] %s\n", m.Content)
			return nil
		}
		chatColor.Printf("[%s] %s\n", m.SenderName, m.Content)
		return nil
	})

	bus.Subscribe(domain.EventNameCodeUpdated, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventCodeUpdated)
		if !ev.Remote {
			return nil
		}
		codeColor.Printf("--- code updated (%d bytes) ---\n%s\n", len(ev.Code), ev.Code)
		return nil
	})

	bus.Subscribe(domain.EventNameNotesUpdated, func(ctx context.Context, e event.Event) error {
		n := e.(domain.EventNotesUpdated).Latest
		tag := ""
		if n.Private {
			tag = " (private)"
		}
		noteColor.Printf("[note%s by %s] %s\n", tag, n.AuthorName, n.Content)
		return nil
	})

	bus.Subscribe(domain.EventNameTimerUpdated, func(ctx context.Context, e event.Event) error {
		t := e.(domain.EventTimerUpdated).Timer
		// A running timer updates every second; only print state changes
		// and round minutes to keep the log readable.
		if t.Status == domain.TimerRunning && t.Remaining%60 != 0 {
			return nil
		}
		timerColor.Printf("[timer] %s %02d:%02d\n", t.Status, t.Remaining/60, t.Remaining%60)
		return nil
	})

	bus.Subscribe(domain.EventNameEvaluationUpdated, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventEvaluationUpdated)
		if ev.Err != nil {
			badColor.Printf("[evaluation] failed: %v\n", ev.Err)
			return nil
		}
		printResults(grading.Redact(ev.Result, role))
		return nil
	})

	bus.Subscribe(domain.EventNameConnectionChanged, func(ctx context.Context, e event.Event) error {
		if e.(domain.EventConnectionChanged).Connected {
			okColor.Println("[connection] live")
		} else {
			badColor.Println("[connection] lost, retrying")
		}
		return nil
	})
}

func printResults(res domain.EvaluationResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Test", "Passed", "Points", "Expected", "Actual"})
	for _, r := range res.Results {
		name := r.TestCaseID
		if r.Hidden {
			name += " (hidden)"
		}
		t.AppendRow(table.Row{name, r.Passed, r.Points, r.Expected, r.Actual})
	}
	t.AppendFooter(table.Row{"Score", "", fmt.Sprintf("%.0f/%.0f", res.Score, res.MaxScore), "", fmt.Sprintf("%.1f%%", res.Percentage)})
	t.Render()
}

func handleLine(ctx context.Context, cl *client.Client, role domain.Role, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if !strings.HasPrefix(line, ":") {
		return false, cl.Chat().Send(ctx, line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case ":help":
		printHelp(role)
	case ":code":
		cl.Document().SetCode(ctx, rest)
	case ":lang":
		return false, cl.Document().SetLanguage(ctx, rest)
	case ":note":
		return false, cl.Notes().Add(ctx, rest, false, domain.NoteGeneral)
	case ":priv":
		if !role.Elevated() {
			return false, fmt.Errorf("private notes require the interviewer role")
		}
		return false, cl.Notes().Add(ctx, rest, true, domain.NoteObservation)
	case ":start":
		return false, cl.Timer().Start(ctx)
	case ":pause":
		return false, cl.Timer().Pause(ctx)
	case ":eval":
		return false, cl.Grading().Evaluate(ctx)
	case ":results":
		if res := cl.Grading().Result(); res != nil {
			printResults(grading.Redact(*res, role))
		} else {
			fmt.Println("no results yet")
		}
	case ":show":
		codeColor.Printf("--- %s ---\n%s\n", cl.Document().Language(), cl.Document().Code())
	case ":quit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %s, try :help", cmd)
	}
	return false, nil
}

func printHelp(role domain.Role) {
	fmt.Println(`  <text>        send a chat message
  :code <text>  replace the shared document
  :lang <lang>  switch the document language
  :note <text>  add a shared note
  :show         print the current document
  :eval         run the evaluation suite
  :results      print the last evaluation
  :quit         leave the session`)
	if role.Elevated() {
		fmt.Println(`  :priv <text>  add a private note
  :start        start the interview timer
  :pause        pause the interview timer`)
	}
}

package console

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/liangmanlin/readline"

	"github.com/liangmanlin/netsync/gutil"
	"github.com/liangmanlin/netsync/kernel/kct"
)

// Caller is a console the shell talks to, local or remote
type Caller interface {
	List() (map[string]Info, error)
	Call(line string) (*Command, error)
}

// RunShell reads commands from the terminal until Ctrl-C or EOF
func RunShell(c Caller, name string) error {
	commands, err := c.List()
	if err != nil {
		return err
	}
	help, pl, needConfirm := buildHelp(commands)
	l, err := readline.NewEx(&readline.Config{
		Prompt:              "(" + name + ")\033[31m>\033[0m ",
		AutoComplete:        readline.NewPrefixCompleter(pl...),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return errors.Wrap(err, "readline")
	}
	defer l.Close()
	out := l.Stdout()
	fmt.Fprint(out, "\nwelcome to use netsync console\n\n")
	fmt.Fprint(out, "command: help for more information\n\n")
	fmt.Fprint(out, "To exit this debug: \u001B[31mCtrl-C\u001B[0m\n\n")
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line != "help" {
			C := kct.CutWith(line, ' ', '\t')
			if confirmCommit, ok := needConfirm[C[0]]; ok {
				fmt.Fprintln(out, "ensure to "+confirmCommit+": "+line+"? [y/n]")
				read, err := l.ReadlineWithDefault("n")
				if err != nil || strings.TrimSpace(read) != "y" {
					fmt.Fprintln(out, "cancel "+confirmCommit)
					continue
				}
			}
			rs, err := c.Call(line)
			if err != nil {
				return err
			}
			if rs.Type != TypeHelp {
				fmt.Fprintln(out, rs.Command)
				continue
			}
		}
		fmt.Fprintln(out, "commands:\n"+strings.Join(help, "\n"))
	}
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func buildHelp(commands map[string]Info) ([]string, []readline.PrefixCompleterInterface, map[string]string) {
	pl := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
	}
	var help []string
	var list []string
	var maxSize, maxArgs int
	for k, v := range commands {
		list = append(list, k)
		maxSize = gutil.Max(maxSize, len(k))
		maxArgs = gutil.Max(maxArgs, len(v.Args))
	}
	sort.Strings(list)
	var needConfirm = make(map[string]string)
	for _, k := range list {
		pl = append(pl, readline.PcItem(k))
		cm := commands[k]
		help = append(help, fmt.Sprintf("    %-"+strconv.Itoa(maxSize)+"s  %-"+strconv.Itoa(maxArgs)+"s  \u001B[35m# %s\033[0m",
			k, cm.Args, cm.Commit))
		if cm.Confirm != "" {
			needConfirm[k] = cm.Confirm
		}
	}
	return help, pl, needConfirm
}

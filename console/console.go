package console

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/kernel/kct"
	"github.com/liangmanlin/netsync/netobj"
)

const (
	TypeCommand uint8 = iota
	TypeHelp          // 未知命令，返回help
	TypeResult
	TypeList
)

// Command is one request or answer of the console
type Command struct {
	Type    uint8  `json:"type"`
	Command string `json:"command"`
}

type Handler = func(commands []string) string

type chandler struct {
	name          string
	args          string
	commit        string
	argNum        int
	confirm       bool
	confirmCommit string
	handler       Handler
}

type consoleCommit string

type consoleArg string

type consoleConfirm string

func Arg(example string) consoleArg {
	return consoleArg(example)
}

func Commit(commit string) consoleCommit {
	return consoleCommit(commit)
}

func Confirm(confirm string) consoleConfirm {
	return consoleConfirm(confirm)
}

// Info describes a command to the shell
type Info struct {
	Args    string `json:"args"`
	Commit  string `json:"commit"`
	Confirm string `json:"confirm,omitempty"`
}

// Console runs debug commands over an ObjectService. run moves a command onto
// the tick goroutine, nil runs it in place.
type Console struct {
	mux      sync.RWMutex
	handlers map[string]*chandler
	svc      *netobj.ObjectService
	rep      *netobj.Replicator
	run      func(f func())
}

type optFun func(c *Console)

func WithReplicator(rep *netobj.Replicator) optFun {
	return func(c *Console) {
		c.rep = rep
	}
}

// WithRunner makes every command run through run, which must call f once and
// return after it
func WithRunner(run func(f func())) optFun {
	return func(c *Console) {
		c.run = run
	}
}

func New(svc *netobj.ObjectService, opt ...optFun) *Console {
	c := &Console{handlers: make(map[string]*chandler), svc: svc}
	for _, f := range opt {
		f(c)
	}
	c.makeHandlers()
	return c
}

func (c *Console) Register(command string, handler Handler, opt ...interface{}) {
	var argNum int
	var confirm bool
	var commit, args, confirmCommit string
	for _, op := range opt {
		switch o := op.(type) {
		case consoleArg:
			argNum++
			args += " " + string(o)
		case consoleCommit:
			commit = string(o)
		case consoleConfirm:
			confirm = true
			confirmCommit = string(o)
		}
	}
	c.mux.Lock()
	c.handlers[command] = &chandler{
		name:          command,
		argNum:        argNum,
		args:          args,
		commit:        commit,
		confirm:       confirm,
		confirmCommit: confirmCommit,
		handler:       handler,
	}
	c.mux.Unlock()
}

// Commands lists every command by name
func (c *Console) Commands() map[string]Info {
	c.mux.RLock()
	defer c.mux.RUnlock()
	rs := make(map[string]Info, len(c.handlers))
	for k, v := range c.handlers {
		info := Info{Args: v.args, Commit: v.commit}
		if v.confirm {
			info.Confirm = v.confirmCommit
		}
		rs[k] = info
	}
	return rs
}

func (c *Console) List() (map[string]Info, error) {
	return c.Commands(), nil
}

func (c *Console) Call(line string) (*Command, error) {
	return c.Exec(line), nil
}

// Exec runs one command line, an unknown command or one with too few
// arguments answers TypeHelp
func (c *Console) Exec(line string) *Command {
	commands := kct.CutWith(line, ' ', '\t')
	if len(commands) == 0 {
		return &Command{Type: TypeHelp, Command: "help"}
	}
	c.mux.RLock()
	f, ok := c.handlers[commands[0]]
	c.mux.RUnlock()
	if !ok || len(commands) <= f.argNum {
		return &Command{Type: TypeHelp, Command: "help"}
	}
	kernel.DebugLog("recv command: %s", line)
	var rs string
	c.exec(func() {
		kernel.CatchFun(func() { rs = f.handler(commands[1:]) })
	})
	return &Command{Type: TypeResult, Command: rs}
}

func (c *Console) exec(f func()) {
	if c.run == nil {
		f()
		return
	}
	c.run(f)
}

func (c *Console) makeHandlers() {
	c.Register("objects", c.objects,
		Commit("list every object slot"))
	c.Register("slot", c.slot,
		Arg("id"),
		Commit("show one object slot"))
	c.Register("members", c.members,
		Arg("type"),
		Commit("member tables of a network type"))
	c.Register("snapshot", c.snapshot,
		Arg("id"),
		Commit("latest snapshot of an object"))
	c.Register("stats", c.stats,
		Commit("service counters"))
	c.Register("delete", c.delete,
		Arg("id"),
		Commit("request the delete of an object"),
		Confirm("delete the object"))
	c.Register("gc", func([]string) string { runtime.GC(); return "gc done" },
		Commit("global gc"))
	c.Register("loglevel", logLevel,
		Arg("1|2"),
		Commit("change the logger level"))
}

func parseID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.Errorf("bad object id %q", s)
	}
	return int32(id), nil
}

func (c *Console) objects([]string) string {
	var l []string
	c.svc.Slots().Range(func(s *netobj.ObjectSlot) bool {
		typ := "-"
		if a := s.Agent(); a != nil {
			typ = a.Registration().Name()
		}
		l = append(l, fmt.Sprintf("%-8d %-12s %-18s %s", s.ID(), typ, s.State(), s.Owner()))
		return true
	})
	if len(l) == 0 {
		return "no objects"
	}
	return strings.Join(l, "\n")
}

func (c *Console) slot(commands []string) string {
	id, err := parseID(commands[0])
	if err != nil {
		return err.Error()
	}
	s, ok := c.svc.Slots().Get(id)
	if !ok {
		return fmt.Sprintf("object %d not found", id)
	}
	sl := []string{
		fmt.Sprintf("id:      %d", s.ID()),
		fmt.Sprintf("state:   %s", s.State()),
		fmt.Sprintf("owner:   %s", s.Owner()),
	}
	if s.State() == netobj.StatePendingDelete {
		sl = append(sl, fmt.Sprintf("delete:  %d ticks", s.DeleteTicks()))
	}
	if a := s.Agent(); a != nil {
		sl = append(sl,
			fmt.Sprintf("type:    %s", a.Registration().Name()),
			fmt.Sprintf("queued:  %d reliable, %d snapshot", a.Reliable().Len(), a.SnapshotQueue().Len()),
			fmt.Sprintf("history: %d", a.HistoryLen()))
	}
	return strings.Join(sl, "\n")
}

func (c *Console) members(commands []string) string {
	reg, ok := c.svc.Registration(commands[0])
	if !ok {
		return fmt.Sprintf("network type %s not registered", commands[0])
	}
	sl := []string{fmt.Sprintf("%s fingerprint:%s", reg.Name(), reg.Fingerprint())}
	for _, table := range [][]*netobj.MemberDefinition{reg.Methods(), reg.Properties()} {
		for _, m := range table {
			getter := ""
			if m.HasGetter() {
				getter = " get"
			}
			sl = append(sl, fmt.Sprintf("  0x%02x %-8s %-40s %s%s", m.WireIndex(), m.Kind, m, m.Flags, getter))
		}
	}
	return strings.Join(sl, "\n")
}

func (c *Console) snapshot(commands []string) string {
	id, err := parseID(commands[0])
	if err != nil {
		return err.Error()
	}
	a, ok := c.svc.Get(id)
	if !ok {
		return fmt.Sprintf("object %d not found", id)
	}
	s, ok := a.Latest()
	if !ok {
		return fmt.Sprintf("object %d has no snapshot", id)
	}
	sl := []string{fmt.Sprintf("object %d at %s", id, time.UnixMilli(s.Time).Format("2006-01-02 15:04:05.000"))}
	for _, v := range s.Values() {
		sl = append(sl, fmt.Sprintf("  %-24s %v", v.Member.Name, v.Value))
	}
	return strings.Join(sl, "\n")
}

func (c *Console) stats([]string) string {
	states := make(map[netobj.ObjectState]int)
	c.svc.Slots().Range(func(s *netobj.ObjectSlot) bool {
		states[s.State()]++
		return true
	})
	keys := make([]int, 0, len(states))
	for st := range states {
		keys = append(keys, int(st))
	}
	sort.Ints(keys)
	sl := []string{fmt.Sprintf("objects: %d", c.svc.Count())}
	for _, k := range keys {
		st := netobj.ObjectState(k)
		sl = append(sl, fmt.Sprintf("  %-18s %d", st, states[st]))
	}
	pool := c.svc.Pool()
	sl = append(sl, fmt.Sprintf("updates: %d/%d", pool.InUse(), pool.Cap()))
	sl = append(sl, fmt.Sprintf("types:   %d", len(c.svc.Registrations())))
	if c.rep != nil {
		sl = append(sl, fmt.Sprintf("peers:   %d", c.rep.Peers()))
	}
	return strings.Join(sl, "\n")
}

func (c *Console) delete(commands []string) string {
	id, err := parseID(commands[0])
	if err != nil {
		return err.Error()
	}
	if !c.svc.TryRequestDelete(id) {
		return fmt.Sprintf("object %d can not be deleted", id)
	}
	return fmt.Sprintf("object %d pending delete", id)
}

func logLevel(commands []string) string {
	level, err := strconv.ParseInt(commands[0], 10, 32)
	if err != nil || (kernel.LogLevel(level) != kernel.LogLevelDebug && kernel.LogLevel(level) != kernel.LogLevelError) {
		return "param [level] error"
	}
	kernel.SetLogLevel(kernel.LogLevel(level))
	return fmt.Sprintf("now log level:%d", level)
}

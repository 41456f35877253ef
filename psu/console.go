package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gopsu/pkg/psu"
	"github.com/itohio/gopsu/pkg/sampler"
)

// param binds a console name to one instrument setting.
type param struct {
	get  func(psu.Bound) (float64, error)
	set  func(float64) error
	unit string
}

// console is the interactive command loop.
type console struct {
	sess   *psu.Session
	smp    *sampler.Sampler
	output string
	params map[string]param
}

func newConsole(sess *psu.Session, smp *sampler.Sampler, output string) *console {
	return &console{
		sess:   sess,
		smp:    smp,
		output: output,
		params: map[string]param{
			"voltage":    {sess.Voltage, sess.SetVoltage, "V"},
			"current":    {sess.Current, sess.SetCurrent, "A"},
			"resistance": {sess.InternalResistance, sess.SetInternalResistance, "Ohm"},
			"ocp":        {sess.OverCurrentProtection, sess.SetOverCurrentProtection, "A"},
			"ovp":        {sess.OverVoltageProtection, sess.SetOverVoltageProtection, "V"},
			"vslew-rise": {sess.RisingVoltageSlewRate, sess.SetRisingVoltageSlewRate, "V/s"},
			"vslew-fall": {sess.FallingVoltageSlewRate, sess.SetFallingVoltageSlewRate, "V/s"},
			"cslew-rise": {sess.RisingCurrentSlewRate, sess.SetRisingCurrentSlewRate, "A/s"},
			"cslew-fall": {sess.FallingCurrentSlewRate, sess.SetFallingCurrentSlewRate, "A/s"},
		},
	}
}

// run reads commands from stdin until quit or EOF.
func (c *console) run() {
	reader := bufio.NewReader(os.Stdin)

	c.printHelp()

	for {
		fmt.Print("\npsu> ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				c.shutdown()
				return
			}
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "info":
			fmt.Print(c.sess.Describe())

		case "get":
			c.cmdGet(args)

		case "set":
			c.cmdSet(args)

		case "apply":
			c.cmdApply(args)

		case "measure", "m":
			c.cmdMeasure()

		case "mode":
			c.cmdMode(args)

		case "on":
			c.cmdOutput(true)

		case "off":
			c.cmdOutput(false)

		case "abort":
			c.cmdAbort()

		case "start":
			c.cmdStart()

		case "stop":
			c.cmdStop()

		case "demo":
			c.cmdDemo()

		case "quit", "exit", "q":
			fmt.Println("Exiting...")
			c.shutdown()
			return

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Println(`
Supply control:
  info                    - Identity, rated power and programming limits
  get <param> [min|max]   - Query a setpoint or one of its limits
  set <param> <value>     - Program a setpoint
  apply <volts> <amps>    - Program voltage and current in one command
  measure                 - Read output voltage, current and power
  mode [CVHS|CCHS|CVLS|CCLS] - Query or select the operating mode
  on / off                - Switch the output on or off
  abort                   - Abort pending instrument operations

Sampling:
  start                   - Start background sampling
  stop                    - Stop sampling and write the CSV file

General:
  demo                    - Scripted run: CVHS, 10 V / 50 A, three output cycles
  help                    - Show this help
  quit                    - Exit

Params:
  voltage current resistance ocp ovp
  vslew-rise vslew-fall cslew-rise cslew-fall`)
}

// busy reports whether the sampler owns the device. The line protocol is half
// duplex, so console commands stay off the wire while the sampling loop runs.
func (c *console) busy() bool {
	if c.smp.Running() {
		fmt.Println("Sampling in progress, stop it first")
		return true
	}
	return false
}

// cmdGet handles the get command.
func (c *console) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <param> [min|max]")
		fmt.Println("  Example: get voltage max")
		return
	}
	if c.busy() {
		return
	}

	p, ok := c.params[strings.ToLower(args[0])]
	if !ok {
		fmt.Printf("Unknown param: %s (type 'help' for the list)\n", args[0])
		return
	}

	bound := psu.Setting
	if len(args) > 1 {
		switch strings.ToLower(args[1]) {
		case "min":
			bound = psu.Min
		case "max":
			bound = psu.Max
		default:
			fmt.Printf("Invalid bound: %s (want min or max)\n", args[1])
			return
		}
	}

	v, err := p.get(bound)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%g %s\n", v, p.unit)
}

// cmdSet handles the set command.
func (c *console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: set <param> <value>")
		fmt.Println("  Example: set voltage 12.5")
		return
	}
	if c.busy() {
		return
	}

	p, ok := c.params[strings.ToLower(args[0])]
	if !ok {
		fmt.Printf("Unknown param: %s (type 'help' for the list)\n", args[0])
		return
	}

	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Printf("Invalid value: %v\n", err)
		return
	}

	if err := p.set(v); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

// cmdApply handles the apply command.
func (c *console) cmdApply(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: apply <volts> <amps>")
		fmt.Println("  Example: apply 10 50")
		return
	}
	if c.busy() {
		return
	}

	volts, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Printf("Invalid voltage: %v\n", err)
		return
	}
	amps, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Printf("Invalid current: %v\n", err)
		return
	}

	if err := c.sess.SetVoltageCurrent(volts, amps); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

// cmdMeasure handles the measure command.
func (c *console) cmdMeasure() {
	if c.busy() {
		return
	}

	v, err := c.sess.MeasureVoltage()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	i, err := c.sess.MeasureCurrent()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	p, err := c.sess.MeasurePower()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%g V  %g A  %g W\n", v, i, p)
}

// cmdMode handles the mode command. Without arguments it queries the present
// operating mode.
func (c *console) cmdMode(args []string) {
	if c.busy() {
		return
	}

	if len(args) == 0 {
		m, err := c.sess.OperatingMode()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if m == psu.ModeUnknown {
			fmt.Println("unknown")
			return
		}
		fmt.Println(string(m))
		return
	}

	if err := c.sess.SetMode(psu.Mode(strings.ToUpper(args[0]))); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK")
}

// cmdOutput handles the on and off commands.
func (c *console) cmdOutput(on bool) {
	if c.busy() {
		return
	}

	var err error
	if on {
		err = c.sess.PowerOn()
	} else {
		err = c.sess.PowerOff()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if on {
		fmt.Println("Output on")
	} else {
		fmt.Println("Output off")
	}
}

// cmdAbort handles the abort command.
func (c *console) cmdAbort() {
	if c.busy() {
		return
	}

	if err := c.sess.Abort(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Aborted")
}

// cmdStart handles the start command.
func (c *console) cmdStart() {
	if err := c.smp.Start(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Sampling started")
}

// cmdStop handles the stop command.
func (c *console) cmdStop() {
	if err := c.smp.Stop(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Saved %d samples to %s\n", c.smp.Snapshot().Len(), c.output)
}

// cmdDemo replays the scripted bring-up: constant-voltage high-speed mode,
// 10 V / 50 A targets, protection limits, then three sampled output cycles.
func (c *console) cmdDemo() {
	if c.busy() {
		return
	}

	if err := c.sess.SetMode(psu.ModeCVHS); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := c.sess.SetVoltageCurrent(10, 50); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := c.sess.SetOverCurrentProtection(115); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if err := c.sess.SetOverVoltageProtection(32); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	for cycle := 1; cycle <= 3; cycle++ {
		fmt.Printf("Cycle %d: output on\n", cycle)
		if err := c.smp.StartSupply(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		time.Sleep(2 * time.Second)

		if err := c.smp.StopSupply(); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("Cycle %d: output off, %d samples collected\n", cycle, c.smp.Snapshot().Len())
		time.Sleep(500 * time.Millisecond)
	}
	fmt.Printf("Demo finished, last cycle saved to %s\n", c.output)
}

// shutdown stops the sampling loop if it is still running so the collected
// series reach the CSV file before exit.
func (c *console) shutdown() {
	if !c.smp.Running() {
		return
	}
	if err := c.smp.Stop(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Saved %d samples to %s\n", c.smp.Snapshot().Len(), c.output)
}

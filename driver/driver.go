package driver

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"netbench/awsd/models"
	"netbench/configuration"
	"netbench/errors"
	"netbench/remote"
)

const packageName = "driver"

// Menu options, numbered as shown to the operator.
const (
	optionEnter = iota + 1
	optionResume
	optionLaunch
	optionTerminate
	optionTerminateAll
	optionExit
)

const menu = `
Options:
1. Enter a running instance
2. Resume a stopped instance
3. Launch new instances
4. Terminate an instance and release its IP
5. Terminate all instances and release IPs
6. Exit
Choose an option: `

// Driver owns the network topology and dispatches operator commands to the
// cloud components.
type Driver struct {
	store       TopologyStore
	provisioner NetworkProvisioner
	instances   InstanceLifecycle
	addresses   AddressManager
	cleaner     CleanupCoordinator
	remote      remote.Client

	launchCount int
	setupScript string
	topology    models.NetworkTopology

	out    io.Writer
	logger *zap.Logger
}

// Dependencies are the collaborators a Driver dispatches to.
type Dependencies struct {
	Store       TopologyStore
	Provisioner NetworkProvisioner
	Instances   InstanceLifecycle
	Addresses   AddressManager
	Cleaner     CleanupCoordinator
	Remote      remote.Client
}

func New(deps Dependencies, cfg *configuration.Config, out io.Writer) *Driver {
	return &Driver{
		store:       deps.Store,
		provisioner: deps.Provisioner,
		instances:   deps.Instances,
		addresses:   deps.Addresses,
		cleaner:     deps.Cleaner,
		remote:      deps.Remote,
		launchCount: cfg.LaunchCount,
		setupScript: cfg.SetupScript,
		out:         out,
		logger:      zap.L().With(zap.String("package", packageName)),
	}
}

// EnsureTopology returns the stored topology, provisioning and saving a new
// one only when none is stored.
func (d *Driver) EnsureTopology(ctx context.Context) (models.NetworkTopology, error) {
	if d.topology.Complete() {
		return d.topology, nil
	}

	topology, found, err := d.store.Load(ctx)
	if err != nil {
		return models.NetworkTopology{}, err
	}
	if found {
		d.logger.Info("Using existing network topology",
			zap.String("operation", "ensure_topology"),
			zap.String("vpc_id", topology.VPCID),
			zap.String("subnet_id", topology.SubnetID),
		)
		fmt.Fprintln(d.out, "Using existing AWS resources.")
		d.topology = topology
		return topology, nil
	}

	d.logger.Info("No stored topology, provisioning network",
		zap.String("operation", "ensure_topology"),
	)
	topology, err = d.provisioner.CreateNetwork(ctx)
	if err != nil {
		return models.NetworkTopology{}, err
	}
	if err := d.store.Save(ctx, topology); err != nil {
		return models.NetworkTopology{}, err
	}
	fmt.Fprintf(d.out, "Created network: vpc %s, subnet %s, security group %s\n",
		topology.VPCID, topology.SubnetID, topology.SecurityGroupID)
	d.topology = topology
	return topology, nil
}

// Run shows instances and the command menu until the operator exits, input
// ends or ctx is cancelled. Invalid selections and failed commands are
// reported and the loop continues.
func (d *Driver) Run(ctx context.Context, in io.Reader) error {
	if _, err := d.EnsureTopology(ctx); err != nil {
		return err
	}

	input := newLineSource(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		running, stopped, err := d.instances.List(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(d.out, "\nRunning Instances:")
		d.printInstances(running)
		fmt.Fprintln(d.out, "\nStopped Instances:")
		d.printInstances(stopped)
		fmt.Fprint(d.out, menu)

		line, ok := input.next(ctx)
		if !ok {
			fmt.Fprintln(d.out)
			return ctx.Err()
		}
		choice, err := parseChoice(line, optionExit)
		if err != nil {
			d.reportInputError(err)
			continue
		}
		if choice == optionExit {
			fmt.Fprintln(d.out, "Exiting.")
			return nil
		}

		if err := d.dispatch(ctx, choice, running, stopped, input); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, errors.ErrUserInput) {
				d.reportInputError(err)
				continue
			}
			d.logger.Error("Command failed",
				zap.String("operation", "dispatch"),
				zap.Int("choice", choice),
				zap.Error(err),
			)
			fmt.Fprintf(d.out, "Command failed: %v\n", err)
		}
	}
}

func (d *Driver) dispatch(ctx context.Context, choice int, running, stopped []models.Instance, input *lineSource) error {
	done := make(chan struct{})
	defer close(done)
	shellIn := input.shellInput(done)

	switch choice {
	case optionEnter:
		if len(running) == 0 {
			fmt.Fprintln(d.out, "No running instances available.")
			return nil
		}
		inst, err := d.choose(ctx, input, running)
		if err != nil {
			return err
		}
		return d.EnterInstance(ctx, inst, shellIn)
	case optionResume:
		if len(stopped) == 0 {
			fmt.Fprintln(d.out, "No stopped instances available.")
			return nil
		}
		inst, err := d.choose(ctx, input, stopped)
		if err != nil {
			return err
		}
		return d.ResumeInstance(ctx, inst.InstanceID, shellIn)
	case optionLaunch:
		_, err := d.LaunchInstances(ctx, shellIn)
		return err
	case optionTerminate:
		all := append(append([]models.Instance{}, running...), stopped...)
		if len(all) == 0 {
			fmt.Fprintln(d.out, "No instances available to terminate.")
			return nil
		}
		inst, err := d.choose(ctx, input, all)
		if err != nil {
			return err
		}
		return d.TerminateInstance(ctx, inst.InstanceID)
	case optionTerminateAll:
		return d.TerminateAll(ctx)
	}
	return nil
}

// choose prints instances and reads the operator's selection.
func (d *Driver) choose(ctx context.Context, input *lineSource, instances []models.Instance) (models.Instance, error) {
	d.printInstances(instances)
	fmt.Fprint(d.out, "Enter the number of the instance you want to choose: ")
	line, ok := input.next(ctx)
	if !ok {
		return models.Instance{}, errors.New(errors.ErrUserInput, "no selection made", nil, ctx.Err())
	}
	choice, err := parseChoice(line, len(instances))
	if err != nil {
		return models.Instance{}, err
	}
	return instances[choice-1], nil
}

func (d *Driver) reportInputError(err error) {
	d.logger.Warn("Invalid operator input",
		zap.String("operation", "read_choice"),
		zap.Error(err),
	)
	fmt.Fprintf(d.out, "Invalid choice: %v\n", err)
}

func (d *Driver) printInstances(instances []models.Instance) {
	if len(instances) == 0 {
		fmt.Fprintln(d.out, "  (none)")
		return
	}
	w := tabwriter.NewWriter(d.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTYPE\tLAUNCH TIME\tSTATE\tPUBLIC IP")
	for i, inst := range instances {
		ip := inst.PublicIP
		if ip == "" {
			ip = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, inst.InstanceID, inst.InstanceType, inst.LaunchTime.Format(time.RFC3339), inst.State, ip)
	}
	w.Flush()
}

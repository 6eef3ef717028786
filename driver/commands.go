package driver

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netbench/awsd/models"
	"netbench/errors"
	"netbench/remote"
)

// EnterInstance opens an interactive shell on a running instance.
func (d *Driver) EnterInstance(ctx context.Context, inst models.Instance, in io.Reader) error {
	if inst.PublicIP == "" {
		return errors.New(errors.ErrAddress, "instance has no public IP",
			map[string]interface{}{
				"instance_id": inst.InstanceID,
			}, nil)
	}
	return d.remote.Shell(ctx, inst.PublicIP, in, d.out, d.out)
}

// ResumeInstance starts a stopped instance, reruns the setup script and
// opens a shell on it.
func (d *Driver) ResumeInstance(ctx context.Context, instanceID string, in io.Reader) error {
	if err := d.instances.Start(ctx, instanceID); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Instance %s started.\n", instanceID)

	ip, found, err := d.addresses.GetPublicIP(ctx, instanceID)
	if err != nil {
		return err
	}
	if !found {
		d.logger.Warn("Resumed instance has no public IP",
			zap.String("operation", "resume_instance"),
			zap.String("instance_id", instanceID),
		)
		fmt.Fprintf(d.out, "Instance %s has no public IP; skipping setup.\n", instanceID)
		return nil
	}
	fmt.Fprintf(d.out, "Public IP: %s\n", ip)

	if err := remote.RunSetupScript(ctx, d.remote, ip, d.setupScript); err != nil {
		return err
	}
	return d.remote.Shell(ctx, ip, in, d.out, d.out)
}

// LaunchInstances launches the configured number of instances, binds an
// elastic address to each and runs the setup script on all of them
// concurrently, then opens a shell on the first.
func (d *Driver) LaunchInstances(ctx context.Context, in io.Reader) ([]models.ElasticAddress, error) {
	topology, err := d.EnsureTopology(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := d.instances.Launch(ctx, topology, d.launchCount)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(d.out, "Launched instances: %v\n", ids)

	addresses := make([]models.ElasticAddress, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := d.instances.WaitUntil(gctx, id, models.StateRunning); err != nil {
				return err
			}
			addr, err := d.addresses.AllocateAndBind(gctx, id)
			if err != nil {
				return err
			}
			addresses[i] = addr
			d.logger.Info("Instance ready",
				zap.String("operation", "launch_instances"),
				zap.String("instance_id", id),
				zap.String("public_ip", addr.PublicIP),
			)
			return remote.RunSetupScript(gctx, d.remote, addr.PublicIP, d.setupScript)
		})
	}
	if err := g.Wait(); err != nil {
		return addresses, err
	}

	for i, id := range ids {
		fmt.Fprintf(d.out, "Instance %s is running at %s\n", id, addresses[i].PublicIP)
	}
	if len(addresses) == 0 {
		return addresses, nil
	}
	return addresses, d.remote.Shell(ctx, addresses[0].PublicIP, in, d.out, d.out)
}

// TerminateInstance terminates one instance, waits for it to settle and
// reclaims addresses according to the configured release scope.
func (d *Driver) TerminateInstance(ctx context.Context, instanceID string) error {
	if err := d.instances.Terminate(ctx, instanceID); err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Instance %s terminated.\n", instanceID)

	released, err := d.addresses.Release(ctx, instanceID)
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Released %d elastic IP(s).\n", released)
	return nil
}

// TerminateAll requests termination of every instance and reclaims
// addresses. It does not wait for the instances to settle.
func (d *Driver) TerminateAll(ctx context.Context) error {
	ids, released, err := d.cleaner.TerminateAll(ctx)
	if len(ids) > 0 {
		fmt.Fprintf(d.out, "Terminating instances: %v\n", ids)
	} else {
		fmt.Fprintln(d.out, "No instances to terminate.")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "Released %d elastic IP(s).\n", released)
	return nil
}

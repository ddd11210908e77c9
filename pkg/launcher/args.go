package launcher

import (
	"strconv"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// BuildTrainerArgs serializes a job into the trainer's command-line flags.
// The order is fixed so the same job always produces the same invocation:
// dataset, model, segmentation, batching, optimization, evaluation,
// precision, resume.
func BuildTrainerArgs(job *Job) []string {
	run := job.Run
	tr := job.Training

	args := []string{}
	args = append(args, "--task_name", run.Task)
	args = append(args, job.Task.DatasetArgs...)

	args = append(args, "--model_path", job.OutputDir)
	args = append(args, "--from_pretrained", run.Model)
	if job.Model.Tokenizer != "" {
		args = append(args, "--tokenizer", job.Model.Tokenizer)
	}
	if job.Model.BackboneCls != "" {
		args = append(args, "--backbone_cls", job.Model.BackboneCls)
	}
	if job.Model.ModelCls != "" {
		args = append(args, "--model_cls", job.Model.ModelCls)
	}

	args = append(args,
		"--input_size", itoa(run.InputSize),
		"--input_seq_len", itoa(run.InputSeqLen),
		"--num_mem_tokens", itoa(run.MemorySize),
		"--max_n_segments", itoa(run.SegmentCount),
	)

	args = append(args,
		"--batch_size", itoa(run.BatchSize),
		"--gradient_accumulation_steps", itoa(run.GradAccumSteps),
	)
	if tr.Iters > 0 {
		args = append(args, "--iters", itoa(tr.Iters))
	}
	if tr.DataNWorkers > 0 {
		args = append(args, "--data_n_workers", itoa(tr.DataNWorkers))
	}

	args = append(args,
		"--optimizer", run.Optimizer,
		"--lr", ftoa(run.LearningRate),
		"--weight_decay", ftoa(run.WeightDecay),
	)
	if run.Scheduler != "" {
		args = append(args, "--lr_scheduler", run.Scheduler)
		if tr.NumWarmupSteps > 0 {
			args = append(args, "--num_warmup_steps", itoa(tr.NumWarmupSteps))
		}
		if tr.NumTrainingSteps > 0 {
			args = append(args, "--num_training_steps", itoa(tr.NumTrainingSteps))
		}
	}
	if tr.ClipGradNorm != 0 {
		args = append(args, "--clip_grad_norm", ftoa(tr.ClipGradNorm))
	}
	if tr.ClipGradValue != 0 {
		args = append(args, "--clip_grad_value", ftoa(tr.ClipGradValue))
	}

	if tr.LogInterval > 0 {
		args = append(args, "--log_interval", itoa(tr.LogInterval))
	}
	if tr.ValidInterval > 0 {
		args = append(args, "--valid_interval", itoa(tr.ValidInterval))
	}
	if tr.SaveInterval > 0 {
		args = append(args, "--save_interval", itoa(tr.SaveInterval))
	}
	metric := tr.OptimizeMetric
	if metric == "" {
		metric = job.Task.Metric
	}
	mode := tr.OptimizeMode
	if mode == "" {
		mode = job.Task.Mode
	}
	if metric != "" {
		args = append(args, "--optimize_metric", metric, "--optimize_mode", mode)
	}
	if tr.SaveBest {
		args = append(args, "--save_best")
	}

	args = append(args, "--seed", itoa(run.Seed))

	if tr.FP16 {
		args = append(args, "--fp16")
		if tr.FP16Allreduce {
			args = append(args, "--fp16_allreduce")
		}
		if tr.ApexOptLvl != "" {
			args = append(args, "--apex_opt_lvl", tr.ApexOptLvl)
		}
		if tr.MinLossScale != 0 {
			args = append(args, "--min_loss_scale", ftoa(tr.MinLossScale))
		}
	}

	if job.InitCheckpoint != "" {
		args = append(args, "--init_checkpoint", job.InitCheckpoint)
		if tr.SkipUsedData {
			args = append(args, "--skip_used_data")
		}
		if tr.ResetLR {
			args = append(args, "--reset_lr")
		}
		if tr.ResetOptimizer {
			args = append(args, "--reset_optimizer")
		}
	}

	return args
}

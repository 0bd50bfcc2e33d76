package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	RegisterHandler(SweepOverdueTask.TaskID(), SweepOverdueTask.HandleExecution)
	RegisterHandler(RequeueRetriesTask.TaskID(), RequeueRetriesTask.HandleExecution)
	RegisterHandler(PaymentRemindersTask.TaskID(), PaymentRemindersTask.HandleExecution)
	RegisterHandler(ExtendSubscriptionsTask.TaskID(), ExtendSubscriptionsTask.HandleExecution)
}

package flows

// User-facing replies. Kept short and non-technical; details go to the logs.
const (
	msgWelcome = "What would you like to do?"

	msgAskAgentName    = "Send the agent's full name."
	msgAskAgentID      = "Now send the agent's IC number."
	msgAgentSaved      = "Agent saved."
	msgAskSupplierName = "Send the supplier's name."
	msgAskSupplierCat  = "Which category does this supplier belong to?"
	msgSupplierSaved   = "Supplier saved."
	msgAskPersonName   = "Send the person's name."
	msgPersonSaved     = "Person saved."

	msgAskCategory    = "Pick a category for this record."
	msgAskAmount      = "Enter the amount."
	msgAmountInvalid  = "amount must be a positive number"
	msgAskDescription = "Add a short description, or send \"-\" to skip."
	msgExpenseSaved   = "Recorded. Send a photo of the receipt, or tap Skip."
	msgReceiptDone    = "Receipt attached."
	msgReceiptSkipped = "Done, no receipt attached."
	msgAskReceipt     = "Send a photo of the receipt, or tap Skip."

	msgCancelled       = "Cancelled. Nothing was saved."
	msgNothingToCancel = "Nothing to cancel."
	msgTimeout         = "That took too long, so I dropped what we started. Use /start to begin again."

	msgUnknownCommand  = "Unknown command. Try /start."
	msgMenuHint        = "Use /start to open the menu."
	msgUnexpectedPhoto = "Got the file, but there is nothing to attach it to right now."

	msgShortError   = "Something went wrong, please try again."
	msgSaveRetry    = "Couldn't save that. Resend the last message to retry, or /cancel."
	msgUploadRetry  = "Couldn't upload the receipt. Send the photo again to retry, or /cancel."
	msgUseButtons   = "Please use one of the buttons."
	msgTextExpected = "Please answer with text, or /cancel."
)
